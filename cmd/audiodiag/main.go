package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/esphome/voice-kit/internal/audio"
	"github.com/esphome/voice-kit/internal/audio/sink"
	"github.com/esphome/voice-kit/internal/logging"
	"github.com/esphome/voice-kit/internal/media"
)

func main() {
	playURL := flag.String("play", "", "Play a file/URL through the full engine chain")
	testTone := flag.Bool("tone", false, "Play a 440 Hz test tone through the engine")
	toneDuration := flag.Int("duration", 3, "Test tone duration in seconds")
	flag.Parse()

	fmt.Println("=== PortAudio Output Diagnostics ===")
	fmt.Println()

	if err := portaudio.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize PortAudio: %v\n", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	_ = logging.InitFromEnv()
	defer logging.Sync()

	if *playURL != "" {
		runPlayTest(*playURL)
		return
	}
	if *testTone {
		runToneTest(*toneDuration)
		return
	}

	listDevices()
}

func listDevices() {
	hostAPIs, err := portaudio.HostApis()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get host APIs: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d Host API(s):\n", len(hostAPIs))
	for i, api := range hostAPIs {
		fmt.Printf("  [%d] %s (devices: %d)\n", i, api.Name, len(api.Devices))
	}
	fmt.Println()

	defaultOutput, err := portaudio.DefaultOutputDevice()
	if err != nil {
		fmt.Printf("Default Output Device: (error: %v)\n", err)
	} else {
		fmt.Printf("Default Output Device: %s\n", defaultOutput.Name)
	}
	fmt.Println()

	devices, err := portaudio.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get devices: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== Output-Capable Devices ===\n\n")
	for i, dev := range devices {
		if dev.MaxOutputChannels == 0 {
			continue
		}

		isDefault := ""
		if defaultOutput != nil && dev.Name == defaultOutput.Name {
			isDefault = " [DEFAULT OUTPUT]"
		}

		isBluetooth := strings.Contains(strings.ToLower(dev.Name), "bluetooth") ||
			strings.Contains(strings.ToLower(dev.Name), "airpods") ||
			strings.Contains(strings.ToLower(dev.Name), "headset")
		btMarker := ""
		if isBluetooth {
			btMarker = " (Bluetooth?)"
		}

		fmt.Printf("[%d] %s%s%s\n", i, dev.Name, isDefault, btMarker)
		fmt.Printf("    Max Output Channels: %d\n", dev.MaxOutputChannels)
		fmt.Printf("    Default Sample Rate: %.0f Hz\n", dev.DefaultSampleRate)
		fmt.Printf("    Output Latency: Low=%.1fms, High=%.1fms\n",
			dev.DefaultLowOutputLatency.Seconds()*1000,
			dev.DefaultHighOutputLatency.Seconds()*1000)

		if dev.DefaultSampleRate != float64(audio.DefaultSampleRate) {
			fmt.Printf("    Note: device default is %.0f Hz, engine default is %d Hz\n",
				dev.DefaultSampleRate, audio.DefaultSampleRate)
		}
		fmt.Println()
	}
}

// runPlayTest 通过完整引擎链播放一个源：
// producer → 输入缓冲 → 混音器 → 输出缓冲 → 输出工作循环 → PortAudio
func runPlayTest(url string) {
	fmt.Printf("Playing %s through the engine chain...\n", url)

	info := audio.DefaultStreamInfo()
	mixer, err := audio.NewCombineStreamer(info)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create mixer: %v\n", err)
		os.Exit(1)
	}
	mixer.Start("diag-mixer")

	worker := audio.NewStreamWorker(sink.NewPortAudioSink(), mixer, audio.DefaultWorkerConfig())
	worker.Start()

	producer := media.NewProducer(media.Config{Info: info})
	pipe := audio.NewPipeline(audio.PipelineMedia, producer, mixer.MediaInput())
	if err := pipe.Start(url, "diag"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start pipeline: %v\n", err)
		os.Exit(1)
	}

	for ev := range pipe.Events() {
		switch ev.Type {
		case audio.EventWarning:
			fmt.Printf("warning: %v\n", ev.Err)
		case audio.EventStopped:
			fmt.Println("Playback finished.")
			worker.Stop(true)
			worker.Wait()
			mixer.Stop()
			return
		}
	}
}

// runToneTest 直接向混音器的媒体输入写入正弦波
func runToneTest(durationSec int) {
	fmt.Printf("Playing a 440 Hz tone for %d seconds...\n", durationSec)

	info := audio.DefaultStreamInfo()
	mixer, err := audio.NewCombineStreamer(info)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create mixer: %v\n", err)
		os.Exit(1)
	}
	mixer.Start("diag-mixer")

	worker := audio.NewStreamWorker(sink.NewPortAudioSink(), mixer, audio.DefaultWorkerConfig())
	worker.Start()

	in := mixer.MediaInput()
	buf := make([]byte, audio.TransferSamples*info.BytesPerFrame())
	totalSamples := durationSec * info.SampleRate

	phase := 0.0
	step := 2 * math.Pi * 440 / float64(info.SampleRate)
	for written := 0; written < totalSamples; {
		for i := 0; i < audio.TransferSamples; i++ {
			v := int16(math.Sin(phase) * 0.3 * 32767)
			phase += step
			for ch := 0; ch < info.Channels; ch++ {
				off := (i*info.Channels + ch) * 2
				buf[off] = byte(v)
				buf[off+1] = byte(v >> 8)
			}
		}
		in.WriteWithoutReplacement(buf, 100*time.Millisecond)
		written += audio.TransferSamples
	}

	// 等混音与输出链排空
	deadline := time.Now().Add(2 * time.Second)
	for (in.Available() > 0 || mixer.Available() > 0) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	worker.Stop(true)
	worker.Wait()
	mixer.Stop()
	fmt.Println("Done.")
}
