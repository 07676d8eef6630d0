package vector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"docqa/llm"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestSessionFilter(t *testing.T) {
	assert.Equal(t, `session == "3f2a-9c"`, sessionFilter("3f2a-9c"))
	assert.Equal(t, `session == "a\"b"`, sessionFilter(`a"b`))
}

func TestMilvusError(t *testing.T) {
	down := milvusError("failed to search", status.Error(codes.Unavailable, "connection refused"))
	assert.ErrorIs(t, down, llm.ErrIndexUnavailable)

	slow := milvusError("failed to search", fmt.Errorf("call: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, slow, llm.ErrIndexUnavailable)

	cause := errors.New("collection not loaded")
	other := milvusError("failed to search", cause)
	assert.NotErrorIs(t, other, llm.ErrIndexUnavailable)
	assert.ErrorIs(t, other, cause)
}

func TestNewMilvusIndexRequiresDimension(t *testing.T) {
	cfg := DefaultMilvusConfig()
	cfg.Dimension = 0
	_, err := NewMilvusIndex(context.Background(), cfg)
	assert.Error(t, err)
}
