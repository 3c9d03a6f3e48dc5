// Command emulator plays the thermal sensor: it streams REPORT lines and
// image frames to a running hevt so the pipeline can be exercised without
// hardware.
package main

import (
	"context"
	"flag"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/speedwagon-io/hevt/internal/frame"
	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
	"github.com/speedwagon-io/hevt/internal/model"
	"github.com/speedwagon-io/hevt/internal/report"
)

func main() {
	target := flag.String("target", "127.0.0.1", "host running hevt")
	reportPort := flag.Int("report-port", 1234, "hevt report port")
	imagePort := flag.Int("image-port", 1235, "hevt image port")
	interval := flag.Duration("interval", 500*time.Millisecond, "time between reports")
	chunk := flag.Int("chunk", 256, "samples per image datagram")
	alarmAbove := flag.Float64("alarm-above", 40, "max temperature that raises the alarm flag")
	listen := flag.String("listen", "", "optional address to receive and log commands on")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := sl.SetupLogger(*logLevel, sl.FormatText)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reportConn, err := net.Dial("udp4", net.JoinHostPort(*target, strconv.Itoa(*reportPort)))
	if err != nil {
		log.Error("failed to dial report port", sl.Err(err))
		os.Exit(1)
	}
	defer reportConn.Close()

	imageConn, err := net.Dial("udp4", net.JoinHostPort(*target, strconv.Itoa(*imagePort)))
	if err != nil {
		log.Error("failed to dial image port", sl.Err(err))
		os.Exit(1)
	}
	defer imageConn.Close()

	if *listen != "" {
		go listenCommands(ctx, log, *listen)
	}

	log.Info("emulator running",
		slog.String("target", *target),
		slog.Duration("interval", *interval),
	)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var prev *model.Frame
	for tick := 0; ; tick++ {
		select {
		case <-ctx.Done():
			log.Info("emulator stopped")
			return
		case <-ticker.C:
		}

		f := synthFrame(tick)
		r := summarize(&f, prev, *alarmAbove)
		prev = &f

		if _, err := reportConn.Write([]byte(report.Encode(r))); err != nil {
			log.Warn("report not sent", sl.Err(err))
		}

		flat := f.Flat()
		for off := 0; off < len(flat); off += *chunk {
			end := min(off+*chunk, len(flat))
			if _, err := imageConn.Write(frame.EncodeSamples(flat[off:end])); err != nil {
				log.Warn("image chunk not sent", sl.Err(err))
				break
			}
		}

		log.Debug("sent", slog.Int("tick", tick), slog.Bool("alarm", r.Alarm), slog.Float64("max", r.MaxTemp))
	}
}

// synthFrame draws a warm background with a hot spot that drifts and pulses.
func synthFrame(tick int) model.Frame {
	var f model.Frame
	t := float64(tick) / 10
	cx := float64(model.FrameCols)/2 + 10*math.Sin(t/3)
	cy := float64(model.FrameRows)/2 + 6*math.Cos(t/4)
	peak := 38 + 8*math.Sin(t/5)

	for y := 0; y < model.FrameRows; y++ {
		for x := 0; x < model.FrameCols; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			f[y][x] = float32(25 + (peak-25)*math.Exp(-d*d/18))
		}
	}
	return f
}

func summarize(f, prev *model.Frame, alarmAbove float64) model.Report {
	minT, maxT := f.MinMax()

	var sum float64
	over := 0
	for y := range f {
		for x := range f[y] {
			sum += float64(f[y][x])
			if float64(f[y][x]) > alarmAbove {
				over++
			}
		}
	}
	avg := sum / model.FramePixels

	diffArea := 0
	var maxSlope, slopeSum float64
	if prev != nil {
		mask := model.ComputeDiffMask(f, prev, 0.5)
		diffArea = mask.Count()
		for y := range f {
			for x := range f[y] {
				s := math.Abs(float64(f[y][x] - prev[y][x]))
				slopeSum += s
				maxSlope = math.Max(maxSlope, s)
			}
		}
	}

	return model.Report{
		Alarm:     float64(maxT) > alarmAbove,
		MaxTemp:   float64(maxT),
		MinTemp:   float64(minT),
		AvgTemp:   avg,
		MaxSlope:  maxSlope,
		AvgSlope:  slopeSum / model.FramePixels,
		OverCount: over,
		DiffArea:  diffArea,
	}
}

func listenCommands(ctx context.Context, log *slog.Logger, addr string) {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		log.Error("failed to listen for commands", sl.Err(err))
		return
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		log.Info("command received", slog.String("from", from.String()), slog.String("cmd", string(buf[:n])))
	}
}
