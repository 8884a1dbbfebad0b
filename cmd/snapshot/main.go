// Command snapshot runs the engine headless for a fixed number of ticks and
// prints the final frame and field-line geometry as JSON. With the same
// flags the output is byte-for-byte identical, which makes it usable as a
// test fixture or a render-layer sample.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/engine"
	"github.com/couchcryptid/space-weather-engine/internal/fieldlines"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

type options struct {
	ticks      int
	seed       uint64
	speed      float64
	kp         float64
	particles  int
	trajectory string
	at         string
	out        string
}

// output is the document written by the command.
type output struct {
	Snapshot *engine.Snapshot   `json:"snapshot"`
	Geometry *fieldlines.Set    `json:"geometry"`
	Aurora   domain.AuroralOval `json:"aurora"`
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Run the magnetosphere engine headless and dump the final frame as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if opts.out != "" && opts.out != "-" {
				f, err := os.Create(opts.out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			return run(opts, w)
		},
	}

	rootCmd.Flags().IntVar(&opts.ticks, "ticks", 600, "Number of animation ticks to run")
	rootCmd.Flags().Uint64Var(&opts.seed, "seed", 1, "Random seed for particle spawning")
	rootCmd.Flags().Float64Var(&opts.speed, "speed", domain.DefaultSolarWindSpeedKmS, "Solar wind speed in km/s")
	rootCmd.Flags().Float64Var(&opts.kp, "kp", 0, "Planetary Kp index (0-9)")
	rootCmd.Flags().IntVar(&opts.particles, "particles", 100, "Particle count (100-200)")
	rootCmd.Flags().StringVar(&opts.trajectory, "trajectory", "", "Path to a trajectory JSON file to animate")
	rootCmd.Flags().StringVar(&opts.at, "at", "2025-01-01T00:00:00Z", "Wall-clock time stamped on generated geometry (RFC3339)")
	rootCmd.Flags().StringVarP(&opts.out, "out", "o", "-", "Output file, - for stdout")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts options, w io.Writer) error {
	if opts.ticks < 0 {
		return fmt.Errorf("ticks must be non-negative, got %d", opts.ticks)
	}
	at, err := time.Parse(time.RFC3339, opts.at)
	if err != nil {
		return fmt.Errorf("parse --at: %w", err)
	}
	domain.SetClock(clockwork.NewFakeClockAt(at))
	defer domain.SetClock(nil)

	params := domain.SimulationParameters{SolarWindSpeedKmS: opts.speed, KpIndex: opts.kp}
	e, err := engine.New(params, engine.Options{
		ParticleCount: opts.particles,
		Rand:          rand.New(rand.NewPCG(opts.seed, opts.seed)),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return err
	}
	defer e.Close()

	if opts.trajectory != "" {
		traj, err := readTrajectory(opts.trajectory)
		if err != nil {
			return err
		}
		if err := e.StageTrajectory(traj); err != nil {
			return err
		}
	}

	for range opts.ticks {
		if _, err := e.Tick(); err != nil {
			return fmt.Errorf("tick: %w", err)
		}
	}

	snap := e.Snapshot()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(output{
		Snapshot: snap,
		Geometry: snap.FieldLines,
		Aurora:   domain.AuroralOvalFor(snap.Parameters.KpIndex),
	})
}

func readTrajectory(path string) (domain.OrbitTrajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.OrbitTrajectory{}, fmt.Errorf("read trajectory: %w", err)
	}
	var traj domain.OrbitTrajectory
	if err := json.Unmarshal(data, &traj); err != nil {
		return domain.OrbitTrajectory{}, fmt.Errorf("decode trajectory: %w", err)
	}
	return traj, nil
}
