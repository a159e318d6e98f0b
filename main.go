package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/charlesgreen/emailtrace/internal/body"
	"github.com/charlesgreen/emailtrace/internal/config"
	"github.com/charlesgreen/emailtrace/internal/geoip"
	"github.com/charlesgreen/emailtrace/internal/headers"
	"github.com/charlesgreen/emailtrace/internal/ipaddr"
	"github.com/charlesgreen/emailtrace/internal/mailparse"
	"github.com/charlesgreen/emailtrace/internal/trace"
	"github.com/charlesgreen/emailtrace/internal/whois"
)

const version = "emailtrace v0.1.0"

// Security configuration constants
const (
	MaxFileSizeBytes     = 50 * 1024 * 1024  // 50MB limit
	MaxHeaderLength      = 10000             // Maximum header field length
	MaxZipFiles          = 100               // Maximum files in ZIP archive
	MaxUncompressedSize  = 100 * 1024 * 1024 // 100MB uncompressed limit
	MaxCompressionRatio  = 100               // 100:1 compression ratio limit
	MaxHeaderSearchBytes = 10000             // Limit for binary header search
	MaxMailboxMessages   = 100000            // Maximum messages read from one mbox
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "batch":
			runBatch(os.Args[2:])
			return
		case "help", "-h", "--help":
			printHelp()
			return
		case "version", "-V", "--version":
			fmt.Println(version)
			return
		}
	}

	runTrace(os.Args[1:])
}

// printHelp displays help information for all commands
func printHelp() {
	fmt.Println("emailtrace - Phishing Email Trace Reconstruction Tool")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  emailtrace [options] <email-file>        Trace the delivery path of a message")
	fmt.Println("  emailtrace batch [options] <mbox-file>   Trace every message of a mailbox")
	fmt.Println("  emailtrace help                          Show this help message")
	fmt.Println("  emailtrace version                       Show version information")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -v             Verbose output (authentication headers and links)")
	fmt.Println("  -json          Output results as JSON")
	fmt.Println("  -config        Path to a YAML configuration file")
	fmt.Println("  -line-ending   unix, dos or auto (default auto)")
	fmt.Println("  -geoip-db      Path to MaxMind GeoLite2 City database")
	fmt.Println("  -asn-db        Path to MaxMind GeoLite2 ASN database")
	fmt.Println("  -no-enrich     Skip IP geolocation enrichment")
	fmt.Println("  -no-whois      Skip abuse contact lookups")
	fmt.Println("  -zip-password  Password of an encrypted .zip sample (e.g. infected)")
	fmt.Println("  -log-level     panic, fatal, error, warn, info, debug or trace")
	fmt.Println()
	fmt.Println("BATCH OPTIONS:")
	fmt.Println("  -workers       Number of messages analyzed in parallel")
	fmt.Println()
	fmt.Println("SUPPORTED FORMATS:")
	fmt.Println("  .eml .txt      RFC 5322 message")
	fmt.Println("  .msg           Outlook message with embedded internet headers")
	fmt.Println("  .zip           Archive holding one message, optionally encrypted")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  emailtrace phish.eml                         Trace a message")
	fmt.Println("  emailtrace -json -no-whois phish.eml         Output the trace as JSON")
	fmt.Println("  emailtrace -zip-password infected phish.zip  Trace a message from a sample archive")
	fmt.Println("  emailtrace batch -workers 8 spam.mbox        Trace a whole mailbox")
}

// options are the flags shared by every analysis command
type options struct {
	verbose     bool
	json        bool
	configPath  string
	lineEnding  string
	geoipDB     string
	asnDB       string
	noEnrich    bool
	noWhois     bool
	zipPassword string
	logLevel    string
	workers     int
}

func registerFlags(fs *flag.FlagSet, opts *options) {
	fs.BoolVar(&opts.verbose, "v", false, "Verbose output (authentication headers and links)")
	fs.BoolVar(&opts.json, "json", false, "Output results as JSON")
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	fs.StringVar(&opts.lineEnding, "line-ending", "", "Line ending of the input: unix, dos or auto")
	fs.StringVar(&opts.geoipDB, "geoip-db", "", "Path to MaxMind GeoLite2 City database")
	fs.StringVar(&opts.asnDB, "asn-db", "", "Path to MaxMind GeoLite2 ASN database")
	fs.BoolVar(&opts.noEnrich, "no-enrich", false, "Skip IP geolocation enrichment")
	fs.BoolVar(&opts.noWhois, "no-whois", false, "Skip abuse contact lookups")
	fs.StringVar(&opts.zipPassword, "zip-password", "", "Password of an encrypted .zip sample")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level")
}

// runTrace analyzes a single message file
func runTrace(args []string) {
	fs := flag.NewFlagSet("emailtrace", flag.ExitOnError)
	opts := &options{}
	registerFlags(fs, opts)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <email-file>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nSupported formats: .eml, .txt, .msg, .zip\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s phish.eml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -json phish.msg\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nRun '%s help' for all options\n", os.Args[0])
		os.Exit(1)
	}

	a, err := newApp(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", eris.ToString(err, false))
		os.Exit(1)
	}
	defer a.Close()

	filename := fs.Arg(0)
	raw, err := readMessageFile(filename, opts.zipPassword)
	if err != nil {
		// Log detailed error internally for debugging
		a.log.Debugf("Internal error: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: Failed to read %s. Please ensure the file is a valid .eml, .txt, .msg or .zip file.\n", sanitizeHeader(filename))
		os.Exit(1)
	}

	result, err := a.analyze(raw)
	if err != nil {
		a.log.Debugf("Internal error: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: Failed to trace message: %s\n", sanitizeHeader(err.Error()))
		os.Exit(1)
	}
	result.Source = filename

	if opts.json {
		err = outputJSON(os.Stdout, result)
	} else {
		err = outputText(os.Stdout, result, opts.verbose)
	}
	if err != nil {
		a.log.Errorf("Error writing report: %v", err)
		os.Exit(1)
	}
}

// runBatch analyzes every message of an mbox file
func runBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	opts := &options{}
	registerFlags(fs, opts)
	fs.IntVar(&opts.workers, "workers", runtime.NumCPU(), "Number of messages analyzed in parallel")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s batch [options] <mbox-file>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		fmt.Fprintf(os.Stderr, "  -workers N   Number of messages analyzed in parallel\n")
		fmt.Fprintf(os.Stderr, "  -json        Output as a JSON array\n")
		os.Exit(1)
	}

	a, err := newApp(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", eris.ToString(err, false))
		os.Exit(1)
	}
	defer a.Close()

	messages, err := readMailbox(fs.Arg(0))
	if err != nil {
		a.log.Debugf("Internal error: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: Failed to read mailbox %s\n", sanitizeHeader(fs.Arg(0)))
		os.Exit(1)
	}

	results, err := a.analyzeAll(context.Background(), messages, opts.workers)
	if err != nil {
		a.log.Debugf("Internal error: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", sanitizeHeader(err.Error()))
		os.Exit(1)
	}

	if opts.json {
		err = outputJSON(os.Stdout, results)
	} else {
		err = outputBatchText(os.Stdout, results, opts.verbose)
	}
	if err != nil {
		a.log.Errorf("Error writing report: %v", err)
		os.Exit(1)
	}
}

// app holds the collaborators shared by every analyzed message
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	ips     *ipaddr.Classifier
	decoder *body.Decoder
	finder  trace.HostInformationFinder
	closers []io.Closer
}

// newApp resolves the configuration and opens the enrichment collaborators.
// Missing GeoIP databases disable enrichment instead of failing.
func newApp(opts *options) (*app, error) {
	cfg, err := config.Load(opts.configPath, os.Getenv)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cfg, opts); err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetLevel(cfg.Level())

	a := &app{cfg: cfg, log: log, decoder: body.NewDecoder(log)}

	var enricher ipaddr.Enricher
	if cfg.GeoIP.Enabled {
		enricher = a.openEnricher()
	}
	a.ips = ipaddr.NewClassifier(enricher, log)

	if cfg.Whois.Enabled {
		a.finder = whois.NewFinder(whois.NewClient(cfg.Whois.Timeout), log)
	}
	return a, nil
}

// applyFlags lets explicitly set flags override the file and environment
func applyFlags(cfg *config.Config, opts *options) error {
	if opts.lineEnding != "" {
		cfg.LineEnding = opts.lineEnding
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.geoipDB != "" {
		cfg.GeoIP.CityDB = opts.geoipDB
	}
	if opts.asnDB != "" {
		cfg.GeoIP.ASNDB = opts.asnDB
	}
	if opts.noEnrich {
		cfg.GeoIP.Enabled = false
	}
	if opts.noWhois {
		cfg.Whois.Enabled = false
	}
	return cfg.Validate()
}

func (a *app) openEnricher() ipaddr.Enricher {
	cityPaths := geoip.DefaultCityPaths
	if a.cfg.GeoIP.CityDB != "" {
		cityPaths = []string{a.cfg.GeoIP.CityDB}
	}
	asnPaths := geoip.DefaultASNPaths
	if a.cfg.GeoIP.ASNDB != "" {
		asnPaths = []string{a.cfg.GeoIP.ASNDB}
	}

	reader, err := geoip.OpenFirst(cityPaths, asnPaths)
	if err != nil {
		a.log.WithError(err).Info("GeoIP enrichment disabled")
		return nil
	}
	a.closers = append(a.closers, reader)

	if a.cfg.GeoIP.CachePath == "" {
		return reader
	}
	cache, err := geoip.OpenCache(a.cfg.GeoIP.CachePath, reader, a.cfg.GeoIP.CacheTTL, a.log)
	if err != nil {
		a.log.WithError(err).Warn("GeoIP cache disabled")
		return reader
	}
	// closed before the reader it wraps
	a.closers = append([]io.Closer{cache}, a.closers...)
	return cache
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close")
		}
	}
}

// lineEnding resolves auto from the raw message: CRLF anywhere means DOS
func lineEnding(name string, raw []byte) (headers.LineEnding, error) {
	if name == "" || name == config.LineEndingAuto {
		if bytes.Contains(raw, []byte("\r\n")) {
			return headers.DOS, nil
		}
		return headers.Unix, nil
	}
	return headers.ParseLineEnding(name)
}

// analyze parses raw and builds its trace report
func (a *app) analyze(raw []byte) (*analysis, error) {
	le, err := lineEnding(a.cfg.LineEnding, raw)
	if err != nil {
		return nil, err
	}

	m, err := mailparse.New(a.ips, le, a.decoder, a.log).Parse(raw)
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse message")
	}
	return newAnalysis(m, trace.BuildReport(m, a.finder), a.log), nil
}

// analyzeAll analyzes messages with at most workers running at once. A
// message that fails to parse is reported in its result and does not stop
// the others. Results keep the order of messages.
func (a *app) analyzeAll(ctx context.Context, messages [][]byte, workers int) ([]*batchResult, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]*batchResult, len(messages))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, raw := range messages {
		i, raw := i, raw
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := &batchResult{Index: i + 1}
			analysis, err := a.analyze(raw)
			if err != nil {
				a.log.WithField("message", i+1).WithError(err).Warn("failed to trace message")
				res.Error = err.Error()
			} else {
				res.Analysis = analysis
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch interrupted")
	}
	return results, nil
}
