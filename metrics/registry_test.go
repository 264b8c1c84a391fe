package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SupersedesSameName(t *testing.T) {
	promReg := prometheus.NewRegistry()
	r := NewRegistry(promReg, nil)

	first := r.Register(context.Background(), "connector-a")
	first.IncrementReceived(0)

	second := r.Register(context.Background(), "connector-a")
	assert.NotSame(t, first, second, "re-registering under the same name must supersede, not panic or error")

	mfs, err := promReg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	r.Unregister("connector-a")
}

func TestRegistry_UnregisterUnknownNameIsNoop(t *testing.T) {
	promReg := prometheus.NewRegistry()
	r := NewRegistry(promReg, nil)
	assert.NotPanics(t, func() { r.Unregister("does-not-exist") })
}
