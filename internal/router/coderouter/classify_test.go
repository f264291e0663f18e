package coderouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCodeDetectsFence(t *testing.T) {
	assert.True(t, IsCode("```go\nfunc main() {}\n```"))
}

func TestIsCodeDetectsLanguageKeyword(t *testing.T) {
	assert.True(t, IsCode("How do I use golang channels?"))
}

func TestIsCodeFalseForPlainText(t *testing.T) {
	assert.False(t, IsCode("What's the capital of France?"))
}

func TestClassifyDebuggingFromStackTrace(t *testing.T) {
	prompt := "I'm getting this error:\nTraceback (most recent call last):\n  File \"x.py\", line 2"
	cls := Classify(prompt, 1)
	assert.Equal(t, CategoryDebugging, cls.Category)
	assert.Greater(t, cls.Confidence, 0.0)
}

func TestClassifySimpleCodeFromTypoFix(t *testing.T) {
	cls := Classify("please fix typo in this comment", 1)
	assert.Equal(t, CategorySimpleCode, cls.Category)
}

func TestClassifyArchitectureFromSystemDesign(t *testing.T) {
	cls := Classify("help me design a system for a microservice architecture", 1)
	assert.Equal(t, CategoryArchitecture, cls.Category)
}

func TestClassifyLongConversationBoostsRefactoring(t *testing.T) {
	shortCls := Classify("optimize this function", 1)
	longCls := Classify("optimize this function", 20)
	assert.GreaterOrEqual(t, longCls.Confidence, shortCls.Confidence)
}

func TestClassifyUnmatchedPromptDefaultsToCodeGeneration(t *testing.T) {
	cls := Classify("hello there", 1)
	assert.Equal(t, CategoryCodeGeneration, cls.Category)
	assert.Equal(t, 0.0, cls.Confidence)
}
