package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/abema/netwatch/adapters"
	"github.com/abema/netwatch/core"
	"github.com/abema/netwatch/host"
	"github.com/abema/netwatch/internal/url"
	"github.com/abema/netwatch/manager"
	"github.com/abema/netwatch/player"
	"github.com/abema/netwatch/rum"
)

var opts struct {
	IntervalMs   uint
	IsHLS        bool
	IsDASH       bool
	MaxBandwidth int64
	Config       string
	TimeoutMs    uint
	NoFetch      bool
	Log          struct {
		JSON     bool
		Severity string
		File     string
	}
	Resource struct {
		Kinds string
		File  string
	}
}
var flagSet *flag.FlagSet

func main() {
	flagSet = flag.NewFlagSet("netwatch", flag.ExitOnError)
	flagSet.Usage = printUsage
	flagSet.UintVar(&opts.IntervalMs, "interval", 0, "fixed manifest polling interval (milliseconds).")
	flagSet.BoolVar(&opts.IsHLS, "hls", false, "This flag indicates URL arguments are HLS streams.")
	flagSet.BoolVar(&opts.IsDASH, "dash", false, "This flag indicates URL arguments are DASH streams.")
	flagSet.Int64Var(&opts.MaxBandwidth, "maxBandwidth", 0, "maximum bandwidth of the played variant or representation.")
	flagSet.StringVar(&opts.Config, "config", "", "YAML file of the agent configuration.")
	flagSet.UintVar(&opts.TimeoutMs, "timeout", 30000, "page navigation timeout (milliseconds).")
	flagSet.BoolVar(&opts.NoFetch, "noFetch", false, "Run without the fetch mechanism.")
	flagSet.BoolVar(&opts.Log.JSON, "log.json", false, "JSON log format")
	flagSet.StringVar(&opts.Log.Severity, "log.severity", "info", "log severity (info|warn|error)")
	flagSet.StringVar(&opts.Log.File, "log.file", "", "append reports to the file instead of stdout.")
	flagSet.StringVar(&opts.Resource.Kinds, "resource.kinds", "", "comma-separated list of logged resource kinds. (ex: \"xhr,fetch,media\")")
	flagSet.StringVar(&opts.Resource.File, "resource.file", "", "append resources to the file instead of stdout.")
	flagSet.Parse(os.Args[1:])

	if len(flagSet.Args()) == 0 {
		invalidArguments("URL must be specified")
	}
	urls := flagSet.Args()
	for _, u := range urls {
		if !url.IsValid(u) {
			invalidArguments("invalid URL: %s", u)
		}
	}

	config := loadConfig()
	onReport := buildOnReportHandler()
	monitoring := core.NewMonitoring(onReport)

	windowConfig := host.NewWindowConfig(urls[0])
	windowConfig.NoFetch = opts.NoFetch
	w := host.NewWindow(windowConfig)

	observables := core.StartRequestCollection(w, config, monitoring)
	defer core.ReleaseRequestCollection(w)
	rum.StartResourceCollection(w, observables, &rum.CollectorConfig{
		Core:       config,
		Monitoring: monitoring,
		OnResource: buildOnResourceHandler(),
		OnReport:   onReport,
	})

	if opts.IsHLS || opts.IsDASH || isStream(urls[0]) {
		play(w, urls, onReport)
	} else {
		navigate(w, urls)
	}
	log.Print("terminated")
}

func loadConfig() *core.Config {
	if opts.Config == "" {
		return core.NewConfig()
	}
	config, err := core.LoadConfigFile(opts.Config)
	if err != nil {
		invalidArguments("failed to load config: %s", err)
	}
	return config
}

func navigate(w *host.Window, urls []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Print("SIGNAL:", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	for _, u := range urls {
		navCtx, navCancel := context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		doc, err := w.Navigate(navCtx, u)
		navCancel()
		if err != nil {
			log.Printf("ERROR: %s", err)
			if ctx.Err() != nil {
				return
			}
			continue
		}
		log.Printf("INFO: navigated: %s: status=%d subresources=%d", doc.URL, doc.Status, len(doc.Subresources))
	}
}

func play(w *host.Window, urls []string, onReport core.OnReportHandler) {
	terminated := make(chan string, len(urls))
	configs := make(map[string]*player.Config, len(urls))
	for _, u := range urls {
		u := u
		config := player.NewConfig(w, u, getStreamType(u))
		if opts.IntervalMs != 0 {
			config.DefaultInterval = time.Millisecond * time.Duration(opts.IntervalMs)
		} else {
			config.PrioritizeSuggestedInterval = true
		}
		config.MaxBandwidth = opts.MaxBandwidth
		config.TerminateIfVOD = true
		config.OnReport = onReport
		config.OnTerminate = func() {
			terminated <- u
		}
		configs[u] = config
	}
	m := manager.NewManager(&manager.Config{AutoRemove: true})
	added, _ := m.Batch(configs)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	for remaining := len(added); remaining > 0; {
		select {
		case u := <-terminated:
			log.Print("terminated: ", u)
			remaining--
		case sig := <-sigCh:
			log.Print("SIGNAL:", sig)
			removed := m.RemoveAll()
			for range removed {
				<-terminated
			}
			return
		}
	}
}

func isStream(u string) bool {
	switch url.ExtNoError(u) {
	case ".m3u8", ".mpd":
		return true
	}
	return false
}

func getStreamType(u string) player.StreamType {
	if opts.IsHLS {
		return player.StreamTypeHLS
	} else if opts.IsDASH {
		return player.StreamTypeDASH
	}
	switch url.ExtNoError(u) {
	case ".m3u8":
		return player.StreamTypeHLS
	case ".mpd":
		return player.StreamTypeDASH
	default:
		invalidArguments("if the extension is neither .m3u8 or .mpd, you must use -hls or -dash option")
	}
	return 0
}

func buildOnReportHandler() core.OnReportHandler {
	var severity core.Severity
	if err := severity.UnmarshalText([]byte(opts.Log.Severity)); err != nil {
		invalidArguments("invalid log severity: %s", opts.Log.Severity)
	}
	config := &adapters.ReportLogConfig{
		Flag:     log.LstdFlags,
		JSON:     opts.Log.JSON,
		Severity: severity,
	}
	if opts.Log.File != "" {
		return adapters.FileReportLogger(config, opts.Log.File)
	}
	return adapters.ReportLogger(config, os.Stdout)
}

func buildOnResourceHandler() rum.OnResourceHandler {
	config := &adapters.ResourceLogConfig{
		Flag: log.LstdFlags,
		JSON: opts.Log.JSON,
	}
	var handler rum.OnResourceHandler
	if opts.Resource.File != "" {
		handler = adapters.FileResourceLogger(config, opts.Resource.File)
	} else {
		handler = adapters.ResourceLogger(config, os.Stdout)
	}
	if opts.Resource.Kinds == "" {
		return handler
	}
	kinds := make([]core.ResourceKind, 0)
	for _, name := range strings.Split(opts.Resource.Kinds, ",") {
		kind, ok := parseResourceKind(strings.TrimSpace(name))
		if !ok {
			invalidArguments("unknown resource kind: %s", name)
		}
		kinds = append(kinds, kind)
	}
	return adapters.OnResourceKindFilter(handler, kinds...)
}

func parseResourceKind(name string) (core.ResourceKind, bool) {
	for kind := core.ResourceDocument; kind <= core.ResourceOther; kind++ {
		if kind.String() == strings.ToLower(name) {
			return kind, true
		}
	}
	return 0, false
}

func printUsage() {
	println("USAGE: netwatch [OPTIONS] URL...")
	println()
	println("Navigates to each page URL, or plays each stream URL, and logs the")
	println("resources and network errors observed by the agent.")
	println()
	println("OPTIONS:")
	flagSet.PrintDefaults()
}

func invalidArguments(format string, args ...interface{}) {
	println("ERROR: invalid arguments:", fmt.Sprintf(format, args...))
	println()
	println("HELP: netwatch -h")
	os.Exit(1)
}
