// Package coderouter implements spec.md §4.9.1: classify a code-shaped
// prompt, pick a target quality tier from the caller's mode, score the
// tier's candidate models, and estimate the savings against a configured
// baseline. Grounded on the keyword-scored classification idiom seen in
// the pack's complexity routers (e.g. Replicant-Partners/Chrysalis's
// ComplexityRouter selecting a model tier from task shape) but rewritten
// against this gateway's own ModelRecord/Pricing types.
package coderouter

import (
	"regexp"
	"strings"
)

// Category is one of the seven prompt classifications (spec.md §4.9.1
// step 2).
type Category string

const (
	CategorySimpleCode      Category = "simple_code"
	CategoryCodeExplanation Category = "code_explanation"
	CategoryCodeGeneration  Category = "code_generation"
	CategoryDebugging       Category = "debugging"
	CategoryRefactoring     Category = "refactoring"
	CategoryArchitecture    Category = "architecture"
	CategoryAgentic         Category = "agentic"
)

// keywordWeights scores a category match by summed keyword length
// (longer, more specific keywords count for more) — spec.md §4.9.1 step
// 2 "per-keyword length weighting".
var keywordWeights = map[Category][]string{
	CategorySimpleCode: {
		"fix typo", "rename variable", "add comment", "format code",
		"one-liner", "quick fix", "syntax error",
	},
	CategoryCodeExplanation: {
		"explain", "what does this do", "how does this work", "walk me through",
		"understand this code", "document this",
	},
	CategoryCodeGeneration: {
		"write a function", "implement", "create a class", "write code",
		"generate", "build a", "write a script",
	},
	CategoryDebugging: {
		"debug", "stack trace", "traceback", "exception", "panic",
		"segfault", "not working", "bug", "error message", "crash",
	},
	CategoryRefactoring: {
		"refactor", "clean up", "extract method", "simplify", "optimize",
		"restructure", "improve readability", "dedupe", "deduplicate",
	},
	CategoryArchitecture: {
		"design a system", "architecture", "microservice", "scalability",
		"design pattern", "system design", "high level design", "data model",
	},
	CategoryAgentic: {
		"multi-step", "agent", "autonomous", "plan and execute",
		"use tools", "orchestrate", "pipeline of tasks",
	},
}

var (
	codeFenceRe   = regexp.MustCompile("```")
	funcDeclRe    = regexp.MustCompile(`(?i)\b(func|def|function|class|interface|struct)\s+\w+`)
	languageRe    = regexp.MustCompile(`(?i)\b(golang|python|javascript|typescript|rust|java|c\+\+|ruby|kotlin|swift)\b`)
	frameworkRe   = regexp.MustCompile(`(?i)\b(react|django|flask|spring|rails|express|gin|fastapi|kubernetes|docker)\b`)
	errorTraceRe  = regexp.MustCompile(`(?i)(traceback \(most recent call last\)|at \S+\.(go|py|js|java):\d+|panic:|exception in thread)`)
	multiFileRe   = regexp.MustCompile(`(?i)\b(file \d|across \d+ files|multiple files|these files|the following files)\b`)
)

// IsCode reports whether prompt is code-related (spec.md §4.9.1 step 1):
// a code fence, a function/class declaration, or a recognized
// language/framework keyword.
func IsCode(prompt string) bool {
	return codeFenceRe.MatchString(prompt) ||
		funcDeclRe.MatchString(prompt) ||
		languageRe.MatchString(prompt) ||
		frameworkRe.MatchString(prompt)
}

// Classification is the result of scoring a prompt against every
// category.
type Classification struct {
	Category   Category
	Confidence float64
}

func score(prompt string) map[Category]float64 {
	lower := strings.ToLower(prompt)
	scores := make(map[Category]float64, len(keywordWeights))
	for cat, keywords := range keywordWeights {
		var s float64
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				s += float64(len(kw)) / 4 // normalize length weighting into a ~0-5 scale
			}
		}
		scores[cat] = s
	}
	return scores
}

// Classify scores prompt into one of the seven categories (spec.md
// §4.9.1 steps 2-3): multi-file mentions boost architecture/agentic,
// detected error traces boost debugging, long conversations boost
// refactoring/architecture.
func Classify(prompt string, conversationTurns int) Classification {
	scores := score(prompt)

	if multiFileRe.MatchString(prompt) {
		scores[CategoryArchitecture] += 2
		scores[CategoryAgentic] += 2
	}
	if errorTraceRe.MatchString(prompt) {
		scores[CategoryDebugging] += 3
	}
	if conversationTurns > 8 {
		scores[CategoryRefactoring] += 1
		scores[CategoryArchitecture] += 1
	}

	best := CategoryCodeGeneration
	bestScore := 0.0
	// Iterate categories in a fixed order so ties resolve deterministically
	// (spec.md §4.9.1 step 2 "tie-break is stable").
	for _, cat := range []Category{
		CategorySimpleCode, CategoryCodeExplanation, CategoryCodeGeneration,
		CategoryDebugging, CategoryRefactoring, CategoryArchitecture, CategoryAgentic,
	} {
		if scores[cat] > bestScore {
			bestScore = scores[cat]
			best = cat
		}
	}

	confidence := bestScore / 5
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return Classification{Category: best, Confidence: confidence}
}
