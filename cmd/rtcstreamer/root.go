package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rtcstreamer/native/internal/config"
)

// Flags
var (
	cfgFile string
	verbose bool
)

var v = viper.New()

// rootCmd runs the streamer when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "rtcstreamer",
	Short: "WebRTC media widget driven over a host websocket",
	Long: `rtcstreamer connects to a host page over a websocket, publishes a WebRTC offer
and its ICE candidates, applies the host's answer and keeps the connection in
the playing state the host asks for.

Configuration is read from $HOME/.rtcstreamer.yaml (or --config), a .env file
and RTCSTREAMER_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetOutput(os.Stderr)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
	RunE: run,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rtcstreamer.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Increase verbosity")

	rootCmd.Flags().String("host-url", "", "websocket URL of the host page")
	rootCmd.Flags().String("mode", "", "RECVONLY, SENDONLY or SENDRECV")
	rootCmd.Flags().String("record-video", "", "write received video to this file")
	rootCmd.Flags().String("record-audio", "", "write received audio to this file")

	cobra.CheckErr(v.BindPFlag(config.KeyVerbose, flags.Lookup("verbose")))
	cobra.CheckErr(v.BindPFlag(config.KeyHostURL, rootCmd.Flags().Lookup("host-url")))
	cobra.CheckErr(v.BindPFlag(config.KeyMode, rootCmd.Flags().Lookup("mode")))
	cobra.CheckErr(v.BindPFlag(config.KeyRecordVideo, rootCmd.Flags().Lookup("record-video")))
	cobra.CheckErr(v.BindPFlag(config.KeyRecordAudio, rootCmd.Flags().Lookup("record-audio")))
}
