package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/courier/config"
	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/codec"
	"github.com/arloliu/courier/payload"
	"github.com/arloliu/courier/schema"
	"github.com/arloliu/courier/transport"
)

var (
	inspectHex  bool
	inspectKind string
)

func init() {
	inspectCmd.Flags().BoolVar(&inspectHex, "hex", false, "files hold hex text instead of raw bytes")
	inspectCmd.Flags().StringVar(&inspectKind, "kind", format.TransportBinarySMS.String(), "transport kind the data travelled over")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect file...",
	Short: "Decode framed parts or a transmission body",
	Long: `Decode framed parts or a transmission body.

Files starting with a part marker are parsed as parts, reassembled and the
resulting body decoded. Any other single file is decoded as a body. Models
of records payloads are taken from the configuration when one is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := format.ParseTransportKind(inspectKind)
		if !ok {
			return fmt.Errorf("%w: transport kind %q", errs.ErrInvalidValue, inspectKind)
		}

		cfg := config.Default()
		if configFile != "" || os.Getenv(config.EnvVar) != "" {
			var err error
			if cfg, err = loadConfig(); err != nil {
				return err
			}
		}

		files := make([][]byte, 0, len(args))
		for _, name := range args {
			data, err := readInput(name, inspectHex)
			if err != nil {
				return err
			}
			files = append(files, data)
		}

		return inspect(cmd.OutOrStdout(), cfg, kind, files)
	},
}

func readInput(name string, isHex bool) ([]byte, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	if !isHex {
		return data, nil
	}

	return hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
}

func inspect(w io.Writer, cfg *config.Config, kind format.TransportKind, files [][]byte) error {
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	limits := transport.LimitsFor(kind)
	if kind == format.TransportHTTP {
		limits = cfg.HTTP.Limits
	}
	opts := append(cfg.CodecOptions(), payload.WithCapacity(limits.MaxPayloadBytes()))
	c, err := payload.NewCodec(registry, opts...)
	if err != nil {
		return err
	}

	body := files[0]
	if len(files) > 1 || (len(body) > 0 && body[0] == transport.Marker) {
		if body, err = reassemble(w, files); err != nil {
			return err
		}
	}

	pt, err := payload.PeekType(body)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "body: %d bytes, type %s\n", len(body), pt)

	p, err := c.Decode(body)
	if err != nil {
		return err
	}

	return describe(w, p)
}

func reassemble(w io.Writer, frames [][]byte) ([]byte, error) {
	var asm *transport.Assembly
	for _, frame := range frames {
		p, err := transport.ParsePart(frame)
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(w, p)
		if asm == nil {
			asm = transport.NewAssembly(p.SenderID, p.PayloadHash)
		}
		if _, err := asm.Add(p, time.Now()); err != nil {
			return nil, err
		}
	}
	if !asm.Complete() {
		return nil, fmt.Errorf("%w: parts %v missing", errs.ErrFormat, asm.Missing())
	}

	return asm.Payload()
}

func describe(w io.Writer, p payload.Payload) error {
	switch p := p.(type) {
	case *payload.Records:
		fmt.Fprintln(w, p)
		for _, r := range p.Records() {
			s := r.Schema()
			fields := make([]string, 0, s.NumColumns())
			for i, col := range s.Columns() {
				fields = append(fields, fmt.Sprintf("%s=%v", col.Name(), r.At(i)))
			}
			fmt.Fprintf(w, "  %s: %s\n", s.Name(), strings.Join(fields, " "))
		}
	case *payload.Model:
		fmt.Fprintln(w, p)
		data, err := schema.MarshalDescriptor(p.Descriptor)
		if err != nil {
			return err
		}
		diag, err := codec.Diagnose(data)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, diag)
	case *payload.Custom:
		fmt.Fprintln(w, p)
		fmt.Fprintln(w, hex.Dump(p.Data))
	default:
		fmt.Fprintln(w, p)
	}

	return nil
}
