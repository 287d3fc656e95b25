package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/assist"
	"inferd/internal/common/fsutil"
	"inferd/internal/config"
	"inferd/internal/embed"
	"inferd/internal/engine"
	"inferd/internal/gguf"
	"inferd/internal/httpapi"
	"inferd/internal/model"
	"inferd/internal/rag"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		cfgPath  string
		logLevel string
	)
	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Local LLM inference engine with caching and RAG",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (.yaml/.json/.toml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")

	root.AddCommand(buildServeCmd(&cfgPath, &logLevel))
	root.AddCommand(buildInspectCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("inferd", version)
		},
	})
	return root
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func buildServeCmd(cfgPath, logLevel *string) *cobra.Command {
	var cfg config.Config
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP inference service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if *cfgPath != "" {
				fileCfg, err := config.Load(*cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				merged := fileCfg
				// flags set explicitly win over file values
				mergeFlagOverrides(cmd, &merged, cfg)
				cfg = merged
			}
			return runServe(cfg, newLogger(*logLevel))
		},
	}
	defaultAddr := ":8080"
	if v := os.Getenv("INFERD_ADDR"); v != "" {
		defaultAddr = v
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", defaultAddr, "HTTP listen address")
	f.StringVar(&cfg.ModelPath, "model", "", "path to a .gguf model file")
	f.StringVar(&cfg.ModelsDir, "models-dir", "", "directory to scan for *.gguf model files")
	f.StringVar(&cfg.Backend, "backend", "", "compute backend: echo|llama (default by model type)")
	f.IntVar(&cfg.Threads, "threads", 0, "generation threads (0=auto)")
	f.IntVar(&cfg.ContextLength, "context-length", 0, "context length cap (0=model default)")
	f.IntVar(&cfg.GPULayers, "gpu-layers", 0, "layers to offload to the GPU")
	f.StringVar(&cfg.Device, "device", "", "device preference, e.g. cuda:0")
	f.BoolVar(&cfg.NoMmap, "no-mmap", false, "read the model into memory instead of mapping it")
	f.Int64Var(&cfg.TokenBudget, "token-budget", 0, "token cache budget (0=default)")
	f.IntVar(&cfg.MemoryLimitMB, "memory-limit-mb", 0, "memory limit for cleanup triggering (0=unlimited)")
	return cmd
}

// mergeFlagOverrides copies explicitly-set flag values over the file config.
func mergeFlagOverrides(cmd *cobra.Command, dst *config.Config, flagCfg config.Config) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if set("addr") {
		dst.Addr = flagCfg.Addr
	}
	if set("model") {
		dst.ModelPath = flagCfg.ModelPath
	}
	if set("models-dir") {
		dst.ModelsDir = flagCfg.ModelsDir
	}
	if set("backend") {
		dst.Backend = flagCfg.Backend
	}
	if set("threads") {
		dst.Threads = flagCfg.Threads
	}
	if set("context-length") {
		dst.ContextLength = flagCfg.ContextLength
	}
	if set("gpu-layers") {
		dst.GPULayers = flagCfg.GPULayers
	}
	if set("device") {
		dst.Device = flagCfg.Device
	}
	if set("no-mmap") {
		dst.NoMmap = flagCfg.NoMmap
	}
	if set("token-budget") {
		dst.TokenBudget = flagCfg.TokenBudget
	}
	if set("memory-limit-mb") {
		dst.MemoryLimitMB = flagCfg.MemoryLimitMB
	}
}

func runServe(cfg config.Config, log zerolog.Logger) error {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	modelPath, err := fsutil.ExpandHome(cfg.ModelPath)
	if err != nil {
		return err
	}
	if modelPath != "" && !fsutil.PathExists(modelPath) {
		return fmt.Errorf("model file does not exist: %s", modelPath)
	}

	eng, err := engine.New(engine.Options{
		ModelPath: modelPath,
		Params: model.Params{
			Threads:       cfg.Threads,
			ContextLength: cfg.ContextLength,
			GPULayers:     cfg.GPULayers,
			Device:        cfg.Device,
			UseMmap:       !cfg.NoMmap,
		},
		Backend:           cfg.Backend,
		TokenBudget:       cfg.TokenBudget,
		ResponseCacheSize: cfg.ResponseCacheSize,
		ResponseTTL:       time.Duration(cfg.ResponseTTLMinutes) * time.Minute,
		MemoryLimitBytes:  uint64(cfg.MemoryLimitMB) << 20,
		Workers:           cfg.Workers,
		QueueDepth:        cfg.QueueDepth,
		MaxWait:           time.Duration(cfg.MaxWaitSeconds) * time.Second,
		Logger:            log,
	})
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Close()

	embedder := embed.New(cfg.EmbedDimension)
	store := rag.NewMemoryStore(embedder)
	orch := rag.New(embedder, store, eng, rag.Options{
		Limit:        cfg.RagLimit,
		Threshold:    cfg.RagThreshold,
		ContextChars: cfg.RagContextChars,
		ChunkSize:    cfg.ChunkSize,
		Overlap:      cfg.ChunkOverlap,
	}, log)
	tasks := assist.New(eng, types.GenerationSettings{})

	httpapi.SetLogger(log)
	baseCtx, stopBase := context.WithCancel(context.Background())
	defer stopBase()
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(httpapi.Deps{
		Engine:   eng,
		Embedder: embedder,
		Rag:      orch,
		Tasks:    tasks,
		Models: func() []types.Model {
			if cfg.ModelsDir == "" {
				return nil
			}
			models, err := registry.LoadDir(cfg.ModelsDir)
			if err != nil {
				log.Warn().Err(err).Str("dir", cfg.ModelsDir).Msg("scanning models dir")
				return nil
			}
			return models
		},
		Reload: func(path string) error {
			expanded, err := fsutil.ExpandHome(path)
			if err != nil {
				return err
			}
			return eng.ReloadModel(expanded)
		},
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("model", modelPath).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	stopBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown")
	}
	return nil
}

func buildInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <model.gguf>",
		Short: "Print GGUF metadata and the tensor directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := fsutil.ExpandHome(args[0])
			if err != nil {
				return err
			}
			md, err := gguf.ParseFile(path)
			if err != nil {
				return err
			}
			fmt.Printf("version:      %d\n", md.Header.Version)
			fmt.Printf("tensors:      %d\n", md.Header.TensorCount)
			fmt.Printf("metadata kv:  %d\n", len(md.KV))
			fmt.Printf("architecture: %s\n", md.Architecture())
			fmt.Printf("data offset:  %d\n", md.DataOffset)

			keys := make([]string, 0, len(md.KV))
			for k := range md.KV {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Println("\nmetadata:")
			for _, k := range keys {
				fmt.Printf("  %-40s %v\n", k, md.KV[k])
			}
			if len(md.Tensors) > 0 {
				fmt.Println("\ntensors:")
				for _, ti := range md.Tensors {
					fmt.Printf("  %-40s %-8s dims=%v offset=%d\n", ti.Name, ti.Type, ti.Dimensions, ti.Offset)
				}
			}
			return nil
		},
	}
}
