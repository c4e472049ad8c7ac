package commands

import (
	"bytes"
	"context"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/courier/config"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/logging"
	"github.com/arloliu/courier/payload"
	"github.com/arloliu/courier/schema"
	"github.com/arloliu/courier/transmission"
	"github.com/arloliu/courier/transport"
)

const riverYAML = `
correspondents:
  - name: base
    address: http://base.example
    kind: HTTP
  - name: buoy
    address: "+15550123"
    kind: BinarySMS
models:
  - name: river
    version: 1
    schemata:
      - name: reading
        columns:
          - {name: station, kind: int, min: 0, max: 1023}
          - {name: taken_at, kind: time}
          - {name: note, kind: string, max_length: 80, optional: true}
`

const riverDescriptor = `
name: river
version: 1
schemata:
  - name: reading
    columns:
      - {name: station, kind: int, min: 0, max: 1023}
      - {name: taken_at, kind: time}
`

func smsCodec(t *testing.T, cfg *config.Config) (*payload.Codec, *schema.Model) {
	t.Helper()

	reg, err := cfg.Registry()
	require.NoError(t, err)
	opts := append(cfg.CodecOptions(), payload.WithCapacity(transport.BinarySMSLimits.MaxPayloadBytes()))
	c, err := payload.NewCodec(reg, opts...)
	require.NoError(t, err)

	return c, reg.Models()[0]
}

func TestInspect_Parts(t *testing.T) {
	logging.Discard()
	cfg, err := config.Parse([]byte(riverYAML))
	require.NoError(t, err)
	c, model := smsCodec(t, cfg)

	s, ok := model.Schema("reading")
	require.True(t, ok)
	rng := rand.New(rand.NewSource(7))
	p := c.NewRecords(model)
	for i := range 12 {
		note := make([]byte, 60)
		for j := range note {
			note[j] = byte('a' + rng.Intn(26))
		}
		r, err := schema.NewRecord(s, int64(i), time.Unix(1_700_000_000+int64(i)*60, 0).UTC(), string(note))
		require.NoError(t, err)
		require.NoError(t, p.TryAdd(r))
	}
	body, err := c.Encode(p)
	require.NoError(t, err)
	parts, err := transport.Split(body, 42, transport.BinarySMSLimits)
	require.NoError(t, err)
	require.Greater(t, len(parts), 1)

	// reversed order
	frames := make([][]byte, 0, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		frame, err := parts[i].Bytes()
		require.NoError(t, err)
		frames = append(frames, frame)
	}

	var out bytes.Buffer
	require.NoError(t, inspect(&out, cfg, format.TransportBinarySMS, frames))
	require.Contains(t, out.String(), "sender_id=42")
	require.Contains(t, out.String(), "type Records")
	require.Contains(t, out.String(), "reading: station=11")

	var missing bytes.Buffer
	require.Error(t, inspect(&missing, cfg, format.TransportBinarySMS, frames[1:]))
}

func TestInspect_ModelBody(t *testing.T) {
	cfg, err := config.Parse([]byte(riverYAML))
	require.NoError(t, err)
	c, model := smsCodec(t, cfg)

	body, err := c.Encode(payload.NewModel(model))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, inspect(&out, config.Default(), format.TransportBinarySMS, [][]byte{body}))
	require.Contains(t, out.String(), "type Model")
	require.Contains(t, out.String(), `"river"`)
}

func TestReadInput_Hex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.hex")
	require.NoError(t, os.WriteFile(path, []byte("c5 00 00\n2a ff\n"), 0o600))

	data, err := readInput(path, true)
	require.NoError(t, err)
	require.Equal(t, []byte{0xc5, 0x00, 0x00, 0x2a, 0xff}, data)

	raw, err := readInput(path, false)
	require.NoError(t, err)
	require.Len(t, raw, 15)
}

func TestAddCorrespondents(t *testing.T) {
	logging.Discard()
	ctx := context.Background()
	cfg, err := config.Parse([]byte(riverYAML))
	require.NoError(t, err)
	reg, err := cfg.Registry()
	require.NoError(t, err)

	store := transmission.NewMemoryStore()
	ctrl, err := transmission.NewController(reg, store, transmission.NewMemoryRecordStore())
	require.NoError(t, err)

	require.NoError(t, addCorrespondents(ctx, ctrl, cfg.Correspondents))
	require.NoError(t, addCorrespondents(ctx, ctrl, cfg.Correspondents), "known correspondents are skipped")

	all, err := store.Correspondents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	buoy, err := store.FindCorrespondent(ctx, format.TransportBinarySMS, "+15550123")
	require.NoError(t, err)
	require.Equal(t, "buoy", buoy.Name)

	require.Error(t, addCorrespondents(ctx, ctrl, []config.CorrespondentConfig{{Name: "x", Address: "y", Kind: "Carrier pigeon"}}))
}

func TestModelIDCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "river.yaml")
	require.NoError(t, os.WriteFile(path, []byte(riverDescriptor), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"model-id", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), "river v1: 0x")
}

func TestRootCmd_SyslogHook(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	path := filepath.Join(t.TempDir(), "river.yaml")
	require.NoError(t, os.WriteFile(path, []byte(riverDescriptor), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--syslog", conn.LocalAddr().String(), "--tag", "courier-test", "model-id", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		syslogAddr = ""
		tag = "courier"
	})
	require.NoError(t, rootCmd.Execute())

	logging.MustGetLogger("cli").Warn("forwarded to syslog")

	buf := make([]byte, 2048)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "courier-test")
	require.Contains(t, string(buf[:n]), "forwarded to syslog")
}
