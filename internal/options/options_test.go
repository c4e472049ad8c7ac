package options

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type resendConfig struct {
	Timeout    time.Duration
	MaxResends int
	Peer       string
	Lossless   bool
}

func withTimeout(d time.Duration) Option[*resendConfig] {
	return New(func(c *resendConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		c.Timeout = d

		return nil
	})
}

func withMaxResends(n int) Option[*resendConfig] {
	return NoError(func(c *resendConfig) { c.MaxResends = n })
}

func withPeer(peer string) Option[*resendConfig] {
	return NoError(func(c *resendConfig) { c.Peer = peer })
}

func validateResend(c *resendConfig) error {
	if c.MaxResends > 0 && c.Timeout == 0 {
		return errors.New("resends need a timeout")
	}

	return nil
}

func TestApply(t *testing.T) {
	t.Run("applies options in order", func(t *testing.T) {
		cfg := &resendConfig{}
		err := Apply(cfg, withTimeout(time.Minute), withPeer("a"), withPeer("b"), withMaxResends(3))
		require.NoError(t, err)
		require.Equal(t, time.Minute, cfg.Timeout)
		require.Equal(t, "b", cfg.Peer, "later options win")
		require.Equal(t, 3, cfg.MaxResends)
	})

	t.Run("stops at first error", func(t *testing.T) {
		cfg := &resendConfig{}
		err := Apply(cfg, withPeer("a"), withTimeout(-time.Second), withMaxResends(3))
		require.ErrorContains(t, err, "timeout must be positive")
		require.Equal(t, "a", cfg.Peer)
		require.Zero(t, cfg.MaxResends, "options after the failing one are not applied")
	})

	t.Run("skips nil options", func(t *testing.T) {
		cfg := &resendConfig{}
		require.NoError(t, Apply(cfg, nil, withMaxResends(1)))
		require.Equal(t, 1, cfg.MaxResends)
	})

	t.Run("no options", func(t *testing.T) {
		cfg := &resendConfig{Lossless: true}
		require.NoError(t, Apply(cfg))
		require.True(t, cfg.Lossless)
	})
}

func TestApplyAndValidate(t *testing.T) {
	cfg := &resendConfig{}
	err := ApplyAndValidate(cfg, validateResend, withMaxResends(2))
	require.ErrorContains(t, err, "resends need a timeout")

	cfg = &resendConfig{}
	err = ApplyAndValidate(cfg, validateResend, withMaxResends(2), withTimeout(time.Second))
	require.NoError(t, err)

	cfg = &resendConfig{}
	require.NoError(t, ApplyAndValidate(cfg, nil, withMaxResends(2)))
}

func TestOption_PrimitiveTarget(t *testing.T) {
	var n int
	var opt Option[*int] = NoError(func(p *int) { *p = 42 })
	require.NoError(t, Apply(&n, opt))
	require.Equal(t, 42, n)
}
