package payment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignature(t *testing.T) {
	for _, scheme := range []SignatureScheme{SchemeHMACSHA256, SchemeBlake2b} {
		t.Run(string(scheme), func(t *testing.T) {
			opts := liveOptions()
			opts.SignatureScheme = scheme
			cfg, err := Load(opts)
			require.NoError(t, err)

			sig := cfg.Sign("1001", 4999)
			assert.Len(t, sig, 64)
			assert.True(t, cfg.Verify("1001", 4999, sig))
			assert.True(t, cfg.Verify("1001", 4999, strings.ToUpper(sig)))

			assert.False(t, cfg.Verify("1001", 1, sig))
			assert.False(t, cfg.Verify("1002", 4999, sig))
			assert.False(t, cfg.Verify("1001", 4999, "zz"))
			assert.False(t, cfg.Verify("1001", 4999, ""))
		})
	}
}

func TestSignature_KeyMatters(t *testing.T) {
	a, err := Load(liveOptions())
	require.NoError(t, err)

	opts := liveOptions()
	opts.TransKey = "another-key"
	b, err := Load(opts)
	require.NoError(t, err)

	assert.NotEqual(t, a.Sign("1001", 4999), b.Sign("1001", 4999))
	assert.False(t, b.Verify("1001", 4999, a.Sign("1001", 4999)))
}

func TestSignature_SchemesDiffer(t *testing.T) {
	opts := liveOptions()
	h, err := Load(opts)
	require.NoError(t, err)

	opts.SignatureScheme = SchemeBlake2b
	b, err := Load(opts)
	require.NoError(t, err)

	assert.NotEqual(t, h.Sign("1001", 4999), b.Sign("1001", 4999))
}

func TestSignature_PurposesDiffer(t *testing.T) {
	cfg, err := Load(liveOptions())
	require.NoError(t, err)

	confirm := cfg.Sign("1001", 4999)
	request := cfg.SignRequest("1001", 4999)
	view := cfg.OrderKey("1001")

	assert.NotEqual(t, confirm, request)
	assert.NotEqual(t, confirm, view)
	assert.False(t, cfg.Verify("1001", 4999, request))
	assert.False(t, cfg.Verify("1001", 0, view))
	assert.False(t, cfg.VerifyOrderKey("1001", request))

	assert.True(t, cfg.VerifyOrderKey("1001", view))
	assert.False(t, cfg.VerifyOrderKey("1002", view))
	assert.False(t, cfg.VerifyOrderKey("1001", ""))
}

func TestSignature_EmptyKeyNeverVerifies(t *testing.T) {
	cfg, err := Load(Options{TestMode: true})
	require.NoError(t, err)
	require.False(t, cfg.HasKey())

	assert.False(t, cfg.Verify("1001", 4999, cfg.Sign("1001", 4999)))
	assert.False(t, cfg.VerifyOrderKey("1001", cfg.OrderKey("1001")))
}
