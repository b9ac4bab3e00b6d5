package util

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	assert := assert_.New(t)
	for input, expected := range map[string]string{
		"alice":            "alice",
		"dQw4w9WgXcQ":      "dQw4w9WgXcQ",
		"  padded  ":       "padded",
		"a/b\\c":           "a_b_c",
		`what?*"<>|:`:      "what_______",
		"tab\there":        "tab_here",
		"":                 "_",
		".":                "__",
		"..":               "___",
		"-_J0hN.sMiTh_-":   "-_J0hN.sMiTh_-",
		"日本語チャンネル": "日本語チャンネル",
	} {
		assert.Equal(expected, SanitizeFilename(input), "input %q", input)
	}
}
