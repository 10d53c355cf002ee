package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRuleName(t *testing.T) {
	valid := []string{
		"test.yar",
		"a.yar",
		"my-rule_v2.yar",
		"deep.scan.yar",
		"UPPER.yar",
		"0day.yar",
	}
	for _, name := range valid {
		assert.Truef(t, ValidRuleName(name), "%q should be accepted", name)
	}

	invalid := []string{
		"",
		".yar",
		"test.yara",
		"test.txt",
		"test",
		"te st.yar",
		"path/test.yar",
		"../test.yar",
		"test.yar ",
		"tëst.yar",
	}
	for _, name := range invalid {
		assert.Falsef(t, ValidRuleName(name), "%q should be rejected", name)
	}
}

func TestDefaultTemplateIsAValidDraft(t *testing.T) {
	assert.True(t, ValidRuleName(DefaultRuleName))
	assert.True(t, strings.Contains(DefaultRuleTemplate, "condition:"))
	assert.Less(t, len(DefaultRuleTemplate), MaxRuleSize)
}
