package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/esphome/voice-kit/internal/audio"
	"github.com/esphome/voice-kit/internal/audio/sink"
	"github.com/esphome/voice-kit/internal/config"
	"github.com/esphome/voice-kit/internal/logging"
	"github.com/esphome/voice-kit/internal/media"
	"github.com/esphome/voice-kit/internal/player"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	flag.Parse()

	appConfig, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{
		Level:  appConfig.Logging.Level,
		Format: appConfig.Logging.Format,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	logging.Infof("========================================")
	logging.Infof("        VoiceKit Starting...            ")
	logging.Infof("========================================")

	logging.Infof("Initializing PortAudio...")
	if err := portaudio.Initialize(); err != nil {
		logging.Fatalf("Failed to initialize PortAudio: %v", err)
	}
	defer portaudio.Terminate()

	info := audio.StreamInfo{
		Channels:      appConfig.Audio.Channels,
		BitsPerSample: appConfig.Audio.BitsPerSample,
		SampleRate:    appConfig.Audio.SampleRate,
	}

	producer := media.NewProducer(media.Config{
		Info:         info,
		WriteTimeout: time.Duration(appConfig.Media.WriteTimeoutMs) * time.Millisecond,
		HTTPTimeout:  time.Duration(appConfig.Media.HTTPTimeoutSec) * time.Second,
	})

	logging.Infof("Creating Player...")
	p, err := player.New(sink.NewPortAudioSink(), producer, nil, player.Config{
		Info:           info,
		PollInterval:   time.Duration(appConfig.Player.PollIntervalMs) * time.Millisecond,
		CommandTimeout: time.Duration(appConfig.Player.CommandTimeoutMs) * time.Millisecond,
		Volume:         appConfig.Player.Volume,
		DuckingRatio:   appConfig.Player.DuckingRatio,
	})
	if err != nil {
		logging.Fatalf("Failed to create Player: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logging.Infof("Received interrupt signal, shutting down...")
		p.Stop()
		cancel()
	}()

	if err := p.Start(ctx); err != nil {
		logging.Fatalf("Failed to start player: %v", err)
	}

	logging.Infof("========================================")
	logging.Infof("     VoiceKit is Running!               ")
	logging.Infof("     Type 'help' for commands.          ")
	logging.Infof("========================================")

	go runConsole(ctx, p)

	<-ctx.Done()
	logging.Infof("VoiceKit stopped.")
}

// runConsole 简易控制台：把标准输入的命令转发给编排器
func runConsole(ctx context.Context, p *player.Player) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "help":
			fmt.Println("commands: play <url> | announce <url> | pause | resume | toggle | stop |")
			fmt.Println("          volume <0..1> | vol+ | vol- | mute | unmute | duck <0..1> | state")
		case "play":
			if len(fields) > 1 {
				p.SetSource(fields[1], false)
			}
		case "announce":
			if len(fields) > 1 {
				p.SetSource(fields[1], true)
			}
		case "pause":
			p.Transport(player.TransportPause)
		case "resume":
			p.Transport(player.TransportPlay)
		case "toggle":
			p.Transport(player.TransportToggle)
		case "stop":
			p.Transport(player.TransportStop)
		case "mute":
			p.Transport(player.TransportMute)
		case "unmute":
			p.Transport(player.TransportUnmute)
		case "vol+":
			p.Transport(player.TransportVolumeUp)
		case "vol-":
			p.Transport(player.TransportVolumeDown)
		case "volume":
			if len(fields) > 1 {
				if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
					p.SetVolume(v)
				}
			}
		case "duck":
			if len(fields) > 1 {
				if r, err := strconv.ParseFloat(fields[1], 64); err == nil {
					p.SetDuckingRatio(r)
				}
			}
		case "state":
			fmt.Printf("state=%s volume=%.2f muted=%v\n", p.State(), p.Volume(), p.Muted())
		default:
			fmt.Printf("unknown command: %s\n", fields[0])
		}
	}
}
