// Package main provides the vorpal-agent entry point: the
// preparation plane that resolves sources and lockfiles into a
// buildable artifact graph.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	agentgrpc "github.com/vorpalbuild/vorpal/pkg/api/agent"
	"github.com/vorpalbuild/vorpal/pkg/agent"
	"github.com/vorpalbuild/vorpal/pkg/logging"
	"github.com/vorpalbuild/vorpal/pkg/notary"
	"github.com/vorpalbuild/vorpal/pkg/store"
	"github.com/vorpalbuild/vorpal/pkg/transport"
)

var rootCmd = &cobra.Command{
	Use:   "vorpal-agent",
	Short: "Serve the Vorpal agent's artifact preparation service",
	RunE:  run,
}

func init() {
	rootCmd.Flags().Int("port", 23150, "port to listen on")
	rootCmd.Flags().String("store", "/var/lib/vorpal", "content store root directory")

	_ = viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("VORPAL_AGENT")
	viper.AutomaticEnv()
}

func run(_ *cobra.Command, _ []string) error {
	log := logging.New()

	st := store.New(viper.GetString("store"))

	if _, err := os.Stat(st.CAPath()); os.IsNotExist(err) {
		log.Info("agent: bootstrapping notary key material")
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

	servicePub, err := os.ReadFile(st.ServicePubPath())
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"goos":   runtime.GOOS,
		"goarch": runtime.GOARCH,
	}).Info("agent: starting")

	grpcServer, err := transport.NewServer(id)
	if err != nil {
		return err
	}

	agentgrpc.RegisterAgentServiceServer(grpcServer, agent.NewServer(st, id, servicePub, log))

	listener, err := transport.Listen(viper.GetInt("port"))
	if err != nil {
		return err
	}

	log.WithField("port", viper.GetInt("port")).Info("agent: listening")
	return grpcServer.Serve(listener)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
