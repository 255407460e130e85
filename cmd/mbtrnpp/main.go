// Command mbtrnpp wires the Frame Reader, Ping Extractor, Ping Ring,
// Sounding Filter, MB1/TRN-update codecs, Publish Servers, optional tee
// log, and optional TRN Orchestrator into one Pipeline Controller run,
// per spec.md §2's data-flow diagram. The CLI surface and graceful
// shutdown follow the teacher's cmd/main.go shape (urfave/cli/v2,
// alitto/pond-backed Publish Servers, signal.NotifyContext).
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v2"

	"github.com/sixy6e/mbtrnpp"
	"github.com/sixy6e/mbtrnpp/archive"
	"github.com/sixy6e/mbtrnpp/decode"
	"github.com/sixy6e/mbtrnpp/pipeline"
	"github.com/sixy6e/mbtrnpp/publish"
	"github.com/sixy6e/mbtrnpp/trn"
)

// loadConfigFile parses a `name value` per-line config file into the
// `fromFile` half of spec.md §6.4's precedence ladder. Blank lines and
// `#`-prefixed comments are skipped; this format isn't specified by
// spec.md itself, so it follows mbtrnpp.c's own flat key/value
// convention (original_source/) rather than inventing a new grammar.
func loadConfigFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		out[fields[0]] = strings.TrimSpace(fields[1])
	}
	return out, scanner.Err()
}

// cliOptions builds the fromCLI half of the precedence ladder from
// whichever flags the invocation actually set, so unset flags don't
// shadow config-file values with their zero value.
func cliOptions(c *cli.Context, names []string) map[string]string {
	out := make(map[string]string)
	for _, name := range names {
		if c.IsSet(name) {
			out[name] = c.String(name)
		}
	}
	return out
}

// optionFlagNames lists the Config option names exposed directly as
// CLI flags; cliOptions uses this to know which flags were explicitly
// set (as opposed to holding their default zero value).
var optionFlagNames = []string{
	"verbose", "input", "format", "platform-file", "platform-target-sensor",
	"log-directory", "output", "projection", "swath-width", "soundings",
	"median-filter", "mbhbn", "mbhbt", "trnhbt", "trnuhbt", "delay",
	"statsec", "statflags", "trn-en", "trn-utm", "trn-map", "trn-cfg",
	"trn-par", "trn-mid", "trn-mtype", "trn-ftype", "trn-ncov", "trn-nerr",
	"trn-ecov", "trn-eerr", "mb-out", "trn-out", "trn-decn", "trn-decs",
	"trn-nombgain",
}

// buildSource selects a Frame Reader adapter from the configured input
// (spec.md §4.1). A `reson7k://` or `kongsberg://` scheme picks the
// matching socket adapter; anything else is treated as a file/datalist
// path (spec.md §6.3). This scheme convention is this wiring's own
// design choice — spec.md specifies the three adapters but not how an
// operator selects one from a single `input` string.
func buildSource(cfg *mbtrn.Config) (decode.FrameSource, error) {
	switch {
	case strings.HasPrefix(cfg.Input, "reson7k://"):
		addr := strings.TrimPrefix(cfg.Input, "reson7k://")
		return decode.NewReson7K(addr, 256*1024, 5*time.Second), nil
	case strings.HasPrefix(cfg.Input, "kongsberg://"):
		rest := strings.TrimPrefix(cfg.Input, "kongsberg://")
		parts := strings.SplitN(rest, "@", 2)
		iface := ""
		if len(parts) == 2 {
			iface = parts[1]
		}
		return decode.NewKongsberg(parts[0], iface, 5*time.Second), nil
	default:
		return decode.NewFileSource(cfg.Input, "datalist")
	}
}

// buildPublisher constructs a Publish Server for the first enabled
// OutputTarget in selector named want, or returns nil if selector names
// no enabled target called want.
func buildPublisher(selector string, want string, mode publish.Mode, transport publish.Transport, table *publish.Table, handler publish.Handler) (*publish.Server, error) {
	targets, err := mbtrn.ParseOutputSelector(selector)
	if err != nil {
		return nil, err
	}
	for _, t := range targets {
		if t.Name != want || !t.Enabled {
			continue
		}
		addr := ":7500"
		if t.Host != "" || t.Port != 0 {
			addr = fmt.Sprintf("%s:%d", t.Host, t.Port)
		}
		return publish.NewServer(want, transport, mode, addr, table, handler)
	}
	return nil, nil
}

// subscribeHandler is the minimal control-plane Handler shared by every
// Publish Server instance: a peer sends the literal "SUBSCRIBE" payload
// to join, anything else is a no-op read with no reply. spec.md §4.6
// specifies the connection-table state machine and credit policy, not
// the wire shape of the subscribe request itself, so this is this
// wiring's own choice of the simplest control message that exercises
// it.
type subscribeHandler struct {
	table *publish.Table
	mode  publish.Mode
}

func (h *subscribeHandler) Read(addr string, data []byte) (any, error) {
	return string(data), nil
}

func (h *subscribeHandler) Handle(addr string, req any) ([]byte, error) {
	if s, ok := req.(string); ok && s == "SUBSCRIBE" {
		h.table.Subscribe(addr, h.mode, time.Now())
		return []byte("OK"), nil
	}
	h.table.Touch(addr, time.Now())
	return nil, nil
}

// buildArchive opens the configured tee-log backend. An empty
// log-directory disables archiving; a `tiledb://` prefix selects the
// TileDB-Go backend (archive/tiledb.go), anything else a plain file
// (archive/archive.go).
func buildArchive(cfg *mbtrn.Config) (archive.Backend, error) {
	if cfg.LogDirectory == "" {
		return nil, nil
	}
	if strings.HasPrefix(cfg.LogDirectory, "tiledb://") {
		uri := strings.TrimPrefix(cfg.LogDirectory, "tiledb://")
		tcfg, err := tiledb.NewConfig()
		if err != nil {
			return nil, err
		}
		ctx, err := tiledb.NewContext(tcfg)
		if err != nil {
			return nil, err
		}
		if err := archive.CreateTileDBArray(ctx, uri, 5); err != nil {
			log.Warn("tiledb array already exists or create failed, attempting open", "uri", uri, "err", err)
		}
		return archive.OpenTileDBBackend(ctx, uri)
	}
	return archive.OpenFileBackend(cfg.LogDirectory + "/mbtrnpp.tee")
}

// statsLoop logs a periodic Snapshot every statsec seconds until ctx is
// cancelled (spec.md §6.4's statsec/statflags periodic output). The
// statflags selector gates which counter groups get logged; an empty
// selector logs everything.
func statsLoop(ctx context.Context, stats *mbtrn.Stats, statsec float64, statflags string) {
	if statsec <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(statsec * float64(time.Second)))
	defer ticker.Stop()
	flags := strings.Split(statflags, ",")
	want := func(group string) bool {
		if statflags == "" {
			return true
		}
		for _, f := range flags {
			if f == group {
				return true
			}
		}
		return false
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := stats.Take()
			if want("soundings") {
				log.Info("stats: soundings", "read", snap.SoundingsRead, "valid", snap.SoundingsValid,
					"null", snap.SoundingsNull, "flagged", snap.SoundingsFlagged, "trimmed", snap.SoundingsTrimmed)
			}
			if want("pings") {
				log.Info("stats: pings", "read", snap.PingsRead, "mb1_emitted", snap.MB1Emitted, "trn_updates", snap.TRNUpdates)
			}
			if want("errors") {
				log.Info("stats: errors", "disconnects", snap.InputDisconnects, "malformed", snap.InputMalformed,
					"estimator_fails", snap.EstimatorFails, "publish_fails", snap.PublishSendFails, "log_fails", snap.LogWriteFails)
			}
		}
	}
}

// run assembles and drives one Pipeline Controller instance from a
// resolved Config. Split out from the cli.Action for testability.
func run(ctx context.Context, cfg *mbtrn.Config, stats *mbtrn.Stats) error {
	source, err := buildSource(cfg)
	if err != nil {
		return fmt.Errorf("building frame source: %w", err)
	}
	if err := source.Open(); err != nil {
		return fmt.Errorf("opening frame source: %w", err)
	}
	defer source.Close()

	// Adapter A's default gain threshold is 200.0, Adapter B's is -20.0
	// (spec.md §4.2); a file source replays whatever an adapter already
	// wrote, so it inherits Adapter A's convention.
	gainThreshold := 200.0
	if _, ok := source.(*decode.Kongsberg); ok {
		gainThreshold = -20.0
	}
	extractor := decode.NewExtractor(gainThreshold)

	mf, err := mbtrn.ParseMedianFilter(cfg.MedianFilter)
	if err != nil {
		return err
	}
	ringDepth := mf.NAlong
	if ringDepth < 1 {
		ringDepth = 1
	}

	mbTable := publish.NewTable(cfg.MBHeartbeatCount, time.Duration(cfg.MBHeartbeatTimeout*float64(time.Second)))
	mbPublisher, err := buildPublisher(cfg.MBOut, "mb1", publish.PubSub, publish.UDP, mbTable,
		&subscribeHandler{table: mbTable, mode: publish.PubSub})
	if err != nil {
		return fmt.Errorf("building mb1 publisher: %w", err)
	}
	if mbPublisher != nil {
		defer mbPublisher.Close()
	}

	trnuTable := publish.NewTable(cfg.MBHeartbeatCount, time.Duration(cfg.TRNUHeartbeatTimeout*float64(time.Second)))
	trnuPublisher, err := buildPublisher(cfg.TRNOut, "trnu", publish.PubSub, publish.UDP, trnuTable,
		&subscribeHandler{table: trnuTable, mode: publish.PubSub})
	if err != nil {
		return fmt.Errorf("building trn-update publisher: %w", err)
	}
	if trnuPublisher != nil {
		defer trnuPublisher.Close()
	}

	reqresTable := publish.NewTable(1, time.Duration(cfg.TRNHeartbeatTimeout*float64(time.Second)))
	reqresServer, err := buildPublisher(cfg.TRNOut, "trn", publish.ReqRes, publish.TCP, reqresTable,
		&subscribeHandler{table: reqresTable, mode: publish.ReqRes})
	if err != nil {
		return fmt.Errorf("building trn req/rep server: %w", err)
	}
	if reqresServer != nil {
		defer reqresServer.Close()
	}

	archiveBackend, err := buildArchive(cfg)
	if err != nil {
		return fmt.Errorf("opening tee log: %w", err)
	}
	if archiveBackend != nil {
		defer archiveBackend.Close()
	}

	var orchestrator *trn.Orchestrator
	if cfg.TRNEnable {
		// The TRN estimator itself is an out-of-scope opaque collaborator
		// (spec.md §1); no in-pack library implements trn.Estimator, so
		// orchestration only runs when an integration supplies one. This
		// wiring logs the gap rather than inventing a stand-in estimator.
		log.Warn("trn-en is set but no trn.Estimator implementation is wired; TRN orchestration disabled")
	}

	ctrl := &pipeline.Controller{
		Source:        source,
		Normalize:     nil,
		Extractor:     extractor,
		Ring:          mbtrn.NewPingRing(ringDepth),
		Filter:        mbtrn.FilterParams{SwathWidth: cfg.SwathWidth, AlongTrack: mf.NAlong, AcrossTrack: mf.NAcross, Threshold: mf.Threshold, TargetCount: cfg.Soundings},
		MB1Publisher:  mbPublisher,
		TRNUPublisher: trnuPublisher,
		TRNServer:     reqresServer,
		Archive:       archiveBackend,
		Orchestrator:  orchestrator,
		Stats:         stats,
		Delay:         time.Duration(cfg.DelayMillis) * time.Millisecond,
	}
	if ctrl.Normalize == nil {
		return fmt.Errorf("no Normalizer wired: vendor payload parsing is out of scope (spec.md §1) and must be supplied by the integration")
	}

	go statsLoop(ctx, stats, cfg.StatSec, cfg.StatFlags)

	return ctrl.Run(ctx)
}

func main() {
	app := &cli.App{
		Name:  "mbtrnpp",
		Usage: "real-time bathymetric preprocessing and TRN update bridge",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a config file (name value per line)"},
			&cli.StringFlag{Name: "input", Usage: "reson7k://host:port, kongsberg://group@iface, or a file/datalist path"},
			&cli.StringFlag{Name: "format", Usage: "datalist format code"},
			&cli.StringFlag{Name: "platform-file"},
			&cli.StringFlag{Name: "platform-target-sensor"},
			&cli.StringFlag{Name: "log-directory", Usage: "tee-log destination; tiledb://uri for the TileDB backend"},
			&cli.StringFlag{Name: "output"},
			&cli.StringFlag{Name: "projection"},
			&cli.StringFlag{Name: "swath-width", Usage: "full swath angle in radians"},
			&cli.StringFlag{Name: "soundings", Usage: "target output sounding count"},
			&cli.StringFlag{Name: "median-filter", Usage: "tau/nx/ny"},
			&cli.StringFlag{Name: "mbhbn"},
			&cli.StringFlag{Name: "mbhbt"},
			&cli.StringFlag{Name: "trnhbt"},
			&cli.StringFlag{Name: "trnuhbt"},
			&cli.StringFlag{Name: "delay", Usage: "inter-cycle delay in milliseconds"},
			&cli.StringFlag{Name: "statsec"},
			&cli.StringFlag{Name: "statflags"},
			&cli.BoolFlag{Name: "trn-en"},
			&cli.StringFlag{Name: "trn-utm"},
			&cli.StringFlag{Name: "trn-map"},
			&cli.StringFlag{Name: "trn-cfg"},
			&cli.StringFlag{Name: "trn-par"},
			&cli.StringFlag{Name: "trn-mid"},
			&cli.StringFlag{Name: "trn-mtype"},
			&cli.StringFlag{Name: "trn-ftype"},
			&cli.StringFlag{Name: "trn-ncov"},
			&cli.StringFlag{Name: "trn-nerr"},
			&cli.StringFlag{Name: "trn-ecov"},
			&cli.StringFlag{Name: "trn-eerr"},
			&cli.StringFlag{Name: "mb-out", Usage: "comma-separated output selector, e.g. mb1:localhost:8000"},
			&cli.StringFlag{Name: "trn-out"},
			&cli.StringFlag{Name: "trn-decn"},
			&cli.StringFlag{Name: "trn-decs"},
			&cli.BoolFlag{Name: "trn-nombgain"},
		},
		Action: func(c *cli.Context) error {
			fromFile, err := loadConfigFile(c.String("config"))
			if err != nil {
				return err
			}
			resolver := mbtrn.NewResolver(time.Now(), nil)
			cfg, err := mbtrn.Load(fromFile, cliOptions(c, optionFlagNames), resolver)
			if err != nil {
				return err
			}

			stats := &mbtrn.Stats{}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			return run(ctx, cfg, stats)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
