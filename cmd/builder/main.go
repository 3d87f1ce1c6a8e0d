// Command builder runs the build orchestration service: it loads the
// kernel and ROM config registries from disk, wires both build engines
// and the artifact dispatcher, and blocks until it receives a shutdown
// signal. The RPC transport named in the CLI surface (--bind-addr) is
// layered on top of these engines elsewhere; this binary only owns
// their construction and lifetime.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.buildorch.dev/go/artifact"
	"go.buildorch.dev/go/buildlog"
	"go.buildorch.dev/go/configstore"
	"go.buildorch.dev/go/jobregistry"
	"go.buildorch.dev/go/kernelbuild"
	"go.buildorch.dev/go/procexec"
	"go.buildorch.dev/go/rombuild"
	"go.buildorch.dev/go/toolchain"
)

const envPrefix = "BUILDORCH"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "builder",
		Short: "Runs the kernel and ROM build orchestration engines.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.String("bind-addr", ":8080", "address the service's RPC transport listens on")
	flags.String("temp-dir", os.TempDir(), "directory for per-build log files")
	flags.String("kernelbuild-json-dir", "", "directory of kernel KernelConfig/builder_config.json files")
	flags.String("kernelbuild-output-dir", "", "directory kernel toolchain installs and source trees live under")
	flags.String("rombuild-json-dir", "", "directory of targets.json/roms.json/recoveries.json/manifest/")
	flags.String("rombuild-output-dir", "", "single fixed ROM build directory")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		cobra.CheckErr(err)
	}

	v.SetDefault("rom.do_repo_sync", true)
	v.SetDefault("rom.do_clean_build", false)
	v.SetDefault("rom.use_ccache", false)
	v.SetDefault("rom.use_rbe_service", false)
	v.SetDefault("rom.do_upload", false)

	return cmd
}

func run(v *viper.Viper) error {
	fs := afero.NewOsFs()

	tempDir := v.GetString("temp-dir")
	kernelJSONDir := v.GetString("kernelbuild-json-dir")
	kernelOutputDir := v.GetString("kernelbuild-output-dir")
	romJSONDir := v.GetString("rombuild-json-dir")
	romOutputDir := v.GetString("rombuild-output-dir")

	if kernelJSONDir == "" || kernelOutputDir == "" || romJSONDir == "" || romOutputDir == "" {
		return fmt.Errorf("builder: --kernelbuild-json-dir, --kernelbuild-output-dir, --rombuild-json-dir, and --rombuild-output-dir are all required")
	}

	kernelConfigs, err := configstore.LoadKernelConfigs(fs, kernelJSONDir)
	if err != nil {
		return fmt.Errorf("builder: loading kernel configs: %w", err)
	}
	catalog, err := configstore.LoadBuilderConfig(fs, kernelJSONDir)
	if err != nil {
		return fmt.Errorf("builder: loading toolchain catalog: %w", err)
	}
	romStore, err := configstore.LoadROMConfigStore(fs, romJSONDir)
	if err != nil {
		return fmt.Errorf("builder: loading ROM config store: %w", err)
	}

	sup := procexec.NewReal()
	provisioner := toolchain.New(fs, kernelOutputDir, sup)

	kernelJobs := jobregistry.NewKernelRegistry()
	kernelEngine := kernelbuild.New(kernelConfigs, catalog, provisioner, sup, fs, tempDir, kernelOutputDir, kernelJobs)

	romJobs := jobregistry.NewROMRegistry()
	romEngine := rombuild.New(romStore, sup, fs, tempDir, romOutputDir, romJobs)
	romEngine.SetSettings(rombuild.SettingsUpdate{
		DoRepoSync:    boolPtr(v.GetBool("rom.do_repo_sync")),
		DoCleanBuild:  boolPtr(v.GetBool("rom.do_clean_build")),
		UseCcache:     boolPtr(v.GetBool("rom.use_ccache")),
		UseRbeService: boolPtr(v.GetBool("rom.use_rbe_service")),
		RbeAPIToken:   stringPtr(v.GetString("rom.rbe_api_token")),
		DoUpload:      boolPtr(v.GetBool("rom.do_upload")),
	})

	svc := &service{
		bindAddr: v.GetString("bind-addr"),
		kernel:   kernelEngine,
		rom:      romEngine,
		artifact: artifact.New(romEngine, noUploader{}),
	}

	buildlog.Infof("builder: ready (bind-addr=%s, kernel configs from %s, rom configs from %s)", svc.bindAddr, kernelJSONDir, romJSONDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	buildlog.Infof("builder: shutting down")
	return nil
}

// service bundles the constructed engines and dispatcher a transport
// layer would serve RPCs from; wiring one in is out of scope here.
type service struct {
	bindAddr string
	kernel   *kernelbuild.Engine
	rom      *rombuild.Engine
	artifact *artifact.Dispatcher
}

// noUploader is the default Uploader wired when no external gofile
// collaborator is configured; every upload attempt fails loudly instead
// of silently pretending to succeed.
type noUploader struct{}

func (noUploader) Upload(_ context.Context, _ string) (string, error) {
	return "", fmt.Errorf("artifact: no uploader configured for the gofile method")
}

func boolPtr(b bool) *bool       { return &b }
func stringPtr(s string) *string { return &s }
