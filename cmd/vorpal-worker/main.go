// Package main provides the vorpal-worker entry point: the build
// plane that pulls sources, runs steps, and publishes finished
// artifacts to a registry.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	workergrpc "github.com/vorpalbuild/vorpal/pkg/api/worker"
	"github.com/vorpalbuild/vorpal/pkg/artifact"
	"github.com/vorpalbuild/vorpal/pkg/authn"
	"github.com/vorpalbuild/vorpal/pkg/logging"
	"github.com/vorpalbuild/vorpal/pkg/notary"
	"github.com/vorpalbuild/vorpal/pkg/store"
	"github.com/vorpalbuild/vorpal/pkg/transport"
	"github.com/vorpalbuild/vorpal/pkg/worker"
)

var rootCmd = &cobra.Command{
	Use:   "vorpal-worker",
	Short: "Serve the Vorpal worker's artifact build service",
	RunE:  run,
}

func init() {
	rootCmd.Flags().Int("port", 23152, "port to listen on")
	rootCmd.Flags().String("store", "/var/lib/vorpal", "content store root directory")
	rootCmd.Flags().String("target", "", "target system this worker builds for, defaults to the host's GOOS/GOARCH")
	rootCmd.Flags().String("oauth-issuer", "", "OAuth2 token issuer for service-to-service credentials, empty disables auth")
	rootCmd.Flags().String("oauth-client-id", "", "OAuth2 client-credentials client ID")
	rootCmd.Flags().String("oauth-client-secret", "", "OAuth2 client-credentials client secret")

	_ = viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("VORPAL_WORKER")
	viper.AutomaticEnv()
}

func hostTarget() artifact.System {
	switch runtime.GOOS {
	case "linux":
		if runtime.GOARCH == "arm64" {
			return artifact.SystemAarch64Linux
		}
		return artifact.SystemX8664Linux
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return artifact.SystemAarch64Macos
		}
		return artifact.SystemX8664Macos
	default:
		return artifact.SystemUnknown
	}
}

func run(_ *cobra.Command, _ []string) error {
	log := logging.New()

	st := store.New(viper.GetString("store"))

	if _, err := os.Stat(st.CAPath()); os.IsNotExist(err) {
		log.Info("worker: bootstrapping notary key material")
		boot, err := notary.GenerateBootstrap()
		if err != nil {
			return err
		}
		if err := notary.WriteBootstrap(st.KeyDir(), boot); err != nil {
			return err
		}
	}

	id, err := transport.LoadIdentity(st.KeyDir())
	if err != nil {
		return err
	}

	serviceKey, err := os.ReadFile(st.ServiceKeyPath())
	if err != nil {
		return err
	}

	target := artifact.ParseSystem(viper.GetString("target"))
	if target == artifact.SystemUnknown {
		target = hostTarget()
	}

	var creds *authn.ServiceCredentials
	if issuer := viper.GetString("oauth-issuer"); issuer != "" {
		creds = authn.NewServiceCredentials(issuer, viper.GetString("oauth-client-id"), viper.GetString("oauth-client-secret"))
	}

	log.WithFields(logrus.Fields{
		"target": target,
	}).Info("worker: starting")

	grpcServer, err := transport.NewServer(id)
	if err != nil {
		return err
	}

	workergrpc.RegisterWorkerServiceServer(grpcServer, worker.NewServer(st, id, serviceKey, target, creds, log))

	listener, err := transport.Listen(viper.GetInt("port"))
	if err != nil {
		return err
	}

	log.WithField("port", viper.GetInt("port")).Info("worker: listening")
	return grpcServer.Serve(listener)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
