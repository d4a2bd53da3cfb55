//go:build unit
// +build unit

package core

import (
	"testing"

	"github.com/go-faster/jx"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRewriteConfigJson(t *testing.T) {
	assert.Equal(t, defaultRewriteConfigJson["rewrite_lib"], jx.Raw("pipeline"))
	assert.Equal(t, defaultRewriteConfigJson["rewrite_options"], jx.Raw("{\"passes\":[]}"))
}

func TestNoRewriteSkipsRewriteStage(t *testing.T) {
	assert.False(t, NoRewrite.NeedsRewrite())
	assert.True(t, DEFAULT_REWRITE_CONFIG().NeedsRewrite())
}
