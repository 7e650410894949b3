package cli

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/api/client"
	"github.com/wizzomafizzo/mfctext/pkg/api/models"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
	"github.com/wizzomafizzo/mfctext/pkg/utils"
)

// writes wait on a tag being presented, so they get longer than a normal
// request
const writeTimeout = 2 * time.Minute

type Flags struct {
	Write   *string
	Api     *string
	Decode  *string
	Encode  *string
	Sector  *int
	Qr      *bool
	Version *bool
}

// SetupFlags defines all CLI flags.
func SetupFlags() *Flags {
	return &Flags{
		Write: flag.String(
			"write",
			"",
			"write text to tag using connected reader",
		),
		Api: flag.String(
			"api",
			"",
			"send method and params to API and print response",
		),
		Decode: flag.String(
			"decode",
			"",
			"decode text from a MIFARE Classic dump file and exit",
		),
		Encode: flag.String(
			"encode",
			"",
			"print the hex blocks text encodes to and exit",
		),
		Sector: flag.Int(
			"sector",
			config.DefaultWriteSector,
			"sector used to size -encode output",
		),
		Qr: flag.Bool(
			"qr",
			false,
			"print a QR code of the API address and exit",
		),
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
	}
}

// Pre runs flag parsing and actions any immediate flags that don't
// require environment setup. Add any custom flags before running this.
func (f *Flags) Pre() {
	flag.Parse()

	if *f.Version {
		fmt.Printf("mfctext v%s\n", config.Version)
		os.Exit(0)
	}

	if *f.Encode != "" {
		err := EncodeText(os.Stdout, *f.Encode, *f.Sector)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error encoding text: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
}

// EncodeText prints the blocks message encodes to, one hex block per line,
// sized for the data blocks of the given sector.
func EncodeText(w io.Writer, message string, sector int) error {
	s, err := mifare.Classic4K().Sector(sector)
	if err != nil {
		return err
	} else if s.Index == 0 {
		return fmt.Errorf("%w: sector 0 is reserved", mifare.ErrInvalidSector)
	}

	blocks, err := mifare.EncodeBlocks(message, s.DataBlockCount())
	if err != nil {
		return err
	}

	for i, b := range blocks {
		_, err := fmt.Fprintf(w, "%d: %s\n", s.FirstBlock+i, hex.EncodeToString(b[:]))
		if err != nil {
			return err
		}
	}

	return nil
}

// DecodeFile prints the text found in a dump file.
func DecodeFile(w io.Writer, cfg *config.UserConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	layout, text, decoder, err := readers.DecodeDump(data, readers.TagOptionsFromConfig(cfg))
	if err != nil {
		return err
	}

	log.Info().Msgf("decoded %s dump with %s decoder", layout.Name, decoder)

	if text == "" {
		_, err = fmt.Fprintln(w, "No readable text found")
		return err
	}

	_, err = fmt.Fprintln(w, text)
	return err
}

func callApi(cfg *config.UserConfig, method string, params any) string {
	var ps string
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error encoding params: %v\n", err)
			os.Exit(1)
		}
		ps = string(data)
	}

	var timeout time.Duration
	if method == models.MethodReadersWrite {
		timeout = writeTimeout
	}

	resp, err := client.LocalClient(cfg, method, ps, timeout)
	if err != nil {
		log.Error().Err(err).Msg("error calling API")
		_, _ = fmt.Fprintf(os.Stderr, "Error calling API: %v\n", err)
		os.Exit(1)
	}

	return resp
}

// Post actions all remaining flags that require the environment to be set
// up. Logging is allowed.
func (f *Flags) Post(cfg *config.UserConfig) {
	if *f.Decode != "" {
		err := DecodeFile(os.Stdout, cfg, *f.Decode)
		if err != nil {
			log.Error().Err(err).Msg("error decoding dump")
			_, _ = fmt.Fprintf(os.Stderr, "Error decoding dump: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	} else if *f.Write != "" {
		fmt.Println("Present a tag to the reader...")
		resp := callApi(cfg, models.MethodReadersWrite, &models.ReaderWriteParams{
			Text: *f.Write,
		})

		var t models.TokenResponse
		err := json.Unmarshal([]byte(resp), &t)
		if err == nil && t.UID != "" {
			fmt.Printf("Wrote to %s (%s)\n", t.UID, t.Type)
		}
		os.Exit(0)
	} else if *f.Api != "" {
		ps := strings.SplitN(*f.Api, ":", 2)
		method := ps[0]
		var params any
		if len(ps) > 1 {
			params = json.RawMessage(ps[1])
		}

		fmt.Println(callApi(cfg, method, params))
		os.Exit(0)
	} else if *f.Qr {
		ip, err := utils.GetLocalIp()
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error getting local IP: %v\n", err)
			os.Exit(1)
		}

		addr := fmt.Sprintf("ws://%s:%s/", ip.String(), cfg.GetApiPort())
		fmt.Println(addr)
		qrterminal.Generate(addr, qrterminal.L, os.Stdout)
		os.Exit(0)
	}
}

// Setup initializes the user config and logging. Returns a user config object.
func Setup(defaultConfig *config.UserConfig) *config.UserConfig {
	cfg, err := config.NewUserConfig(defaultConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	err = utils.InitLogging(cfg, config.DataDir(cfg))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	return cfg
}
