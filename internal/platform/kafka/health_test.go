package kafka

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, SplitBrokers(""))
}

func TestHealthChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx := context.Background()
	assert.NoError(t, NewHealthChecker("127.0.0.1:1,"+ln.Addr().String()).Check(ctx))
	assert.Error(t, NewHealthChecker("").Check(ctx))
	assert.Equal(t, "kafka", NewHealthChecker("").Name())
}
