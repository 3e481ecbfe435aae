// surfacetool is a CLI utility for inspecting and exercising muscle-surface
// authoring documents.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/muscle-surface/internal/authoring"
	"github.com/Faultbox/muscle-surface/internal/character"
	"github.com/Faultbox/muscle-surface/internal/config"
	"github.com/Faultbox/muscle-surface/internal/logger"
	"github.com/Faultbox/muscle-surface/internal/meshdata"
	"github.com/Faultbox/muscle-surface/internal/muscle"
	"github.com/Faultbox/muscle-surface/internal/worker"
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "info":
		cmdInfo(args)
	case "sample":
		cmdSample(cfg, args)
	case "sweep":
		cmdSweep(cfg, args)
	case "watch":
		cmdWatch(cfg, args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`surfacetool - muscle surface authoring utility

Usage:
  surfacetool [global flags] <command> [options]

Commands:
  info <doc>                          Show document contents
  sample <doc> [options]              Deform one frame and print sample points
  sweep [options]                     Print the fit/max/flex factor table
  watch [doc...]                      Reload documents when they change

Global flags:
  -config <file>   -debug   -workers <n>   -batch <n>   -log-file <file>

Examples:
  surfacetool info arm.yaml
  surfacetool sample arm.yaml -v 0,1 -mass 0.6 -flex 1
  surfacetool sweep -fit 0.35 -steps 20
  surfacetool watch arm.toml`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: surfacetool info <doc>")
		os.Exit(1)
	}
	doc, err := authoring.Load(args[0])
	if err != nil {
		fatal(err)
	}
	printInfo(doc)
}

func printInfo(doc *authoring.Document) {
	fmt.Printf("Document: %s\n", doc.Name)
	fmt.Printf("Bones:    %d\n", len(doc.Skeleton))
	fmt.Printf("Surfaces: %d\n", len(doc.Surfaces))
	for _, s := range doc.Surfaces {
		influences := 0
		for _, ws := range s.Weights {
			influences += len(ws)
		}
		fmt.Printf("  %-16s vertices=%d influences=%d blend_shapes=%d\n",
			s.Name, len(s.Vertices), influences, len(s.BlendShapes))
	}

	if doc.Muscles == nil {
		return
	}
	fmt.Println()
	fmt.Printf("Muscle groups: %d\n", len(doc.Muscles.Groups))
	for _, g := range doc.Muscles.Groups {
		mirror := "-"
		if g.Mirror != "" {
			mirror = g.Mirror
		}
		fmt.Printf("  %-16s mirror=%s\n", g.Name, mirror)
	}
	for _, ms := range doc.Muscles.Surfaces {
		fmt.Printf("  surface %s: %d tables\n", ms.Surface, len(ms.Tables))
	}
}

func cmdSample(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("sample", flag.ExitOnError)
	surfaceName := fs.String("surface", "", "Surface to sample (default: first surface)")
	vertices := fs.String("v", "", "Comma-separated vertex indices (default: all)")
	group := fs.String("group", "", "Muscle group to drive (default: all groups)")
	mass := fs.Float64("mass", 0, "Muscle mass")
	flex := fs.Float64("flex", 0, "Muscle flex")
	pump := fs.Float64("pump", 0, "Muscle pump")
	shapes := fs.String("shape", "", "Blend shape weights as name=weight,...")

	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: surfacetool sample <doc> [options]")
		os.Exit(1)
	}
	fs.Parse(args[1:])

	doc, err := authoring.Load(args[0])
	if err != nil {
		fatal(err)
	}
	if len(doc.Surfaces) == 0 {
		fatal(fmt.Errorf("%s has no surfaces", args[0]))
	}
	name := *surfaceName
	if name == "" {
		name = doc.Surfaces[0].Name
	}

	pool := worker.NewPool(cfg.Engine.Workers)
	defer pool.Close()

	c := character.Create(nil, characterConfig(cfg, doc, pool))
	defer c.Destroy()

	s := c.Surface(name)
	if s == nil {
		fatal(fmt.Errorf("unknown surface %q", name))
	}

	indices, err := parseIndices(*vertices, s.Mesh().VertexCount())
	if err != nil {
		fatal(err)
	}
	sampled := make([]int, 0, len(indices))
	for _, v := range indices {
		if h := s.GetOrCreateSample(v); !h.IsZero() {
			sampled = append(sampled, v)
		}
	}

	if err := applyShapeWeights(s.Mesh(), s.SetBlendShapeWeight, *shapes); err != nil {
		fatal(err)
	}

	if m := c.Muscles(); m != nil {
		m.SetBreastPresence(cfg.Muscle.BreastPresence)
		info := muscle.Info{Mass: float32(*mass), Flex: float32(*flex), Pump: float32(*pump)}
		if *group == "" {
			for g := 0; g < m.GroupCount(); g++ {
				m.SetGroup(g, info, true, true)
			}
		} else {
			g := m.GroupIndex(*group)
			if g < 0 {
				fatal(fmt.Errorf("unknown muscle group %q", *group))
			}
			m.SetGroup(g, info, true, true)
		}
	}

	c.Refresh(true)
	c.CompleteJobs()

	fmt.Printf("%-8s %-30s %-30s %s\n", "vertex", "local", "world", "reshaped")
	for _, p := range s.Points() {
		fmt.Printf("%-8d %-30s %-30s %v\n", p.VertexIndex,
			fmt.Sprintf("(%.4f, %.4f, %.4f)", p.Vertex.X, p.Vertex.Y, p.Vertex.Z),
			fmt.Sprintf("(%.4f, %.4f, %.4f)", p.WorldPosition.X, p.WorldPosition.Y, p.WorldPosition.Z),
			p.IsReshaped())
	}
	logger.Debug("sampled", zap.Int("points", len(sampled)), zap.String("surface", name))
}

func characterConfig(cfg *config.Config, doc *authoring.Document, pool *worker.Pool) character.Config {
	cc := character.Config{
		Name:   doc.Name,
		Meshes: doc.Assets(),
		Muscles: doc.MuscleData(authoring.MuscleDefaults{
			FitThreshold:  cfg.Muscle.FitThreshold,
			FlexThreshold: cfg.Muscle.FlexThreshold,
		}),
		Pool:      pool,
		BatchSize: cfg.Engine.BatchSize,
	}
	if skel := doc.BuildSkeleton(); skel != nil {
		cc.Pose = skel
	}
	return cc
}

func parseIndices(list string, count int) ([]int, error) {
	if list == "" {
		out := make([]int, count)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	var out []int
	for _, part := range strings.Split(list, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid vertex index %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func applyShapeWeights(mesh *meshdata.SharedMeshData, set func(int, float32), list string) error {
	if list == "" {
		return nil
	}
	for _, part := range strings.Split(list, ",") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return fmt.Errorf("invalid shape weight %q, want name=weight", part)
		}
		idx := mesh.ShapeIndex(strings.TrimSpace(name))
		if idx < 0 {
			return fmt.Errorf("unknown blend shape %q", name)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
		if err != nil {
			return fmt.Errorf("invalid weight for %s: %w", name, err)
		}
		set(idx, float32(w))
	}
	return nil
}

func cmdSweep(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	fit := fs.Float64("fit", float64(cfg.Muscle.FitThreshold), "Fit threshold")
	flexThreshold := fs.Float64("flex-threshold", float64(cfg.Muscle.FlexThreshold), "Flex threshold")
	flex := fs.Float64("flex", 1, "Flex input")
	bp := fs.Float64("breast", float64(cfg.Muscle.BreastPresence), "Breast presence")
	steps := fs.Int("steps", 20, "Number of mass steps")
	fs.Parse(args)

	if *steps < 1 {
		*steps = 1
	}

	fmt.Printf("%-6s %-8s %-8s %-8s %-8s %-8s %s\n", "mass", "fit", "max", "flex", "bfull", "bfmax", "fit+max")
	for i := 0; i <= *steps; i++ {
		m := float32(i) / float32(*steps)
		f := muscle.ComputeFactors(m, float32(*flex), float32(*fit), float32(*flexThreshold), float32(*bp))
		fmt.Printf("%-6.3f %-8.4f %-8.4f %-8.4f %-8.4f %-8.4f %.4f\n",
			m, f.Fit, f.Max, f.Flex, f.BreastFull, f.BreastFullMax, f.Fit+f.Max)
	}
}

// reloadMeshes replaces the cached mesh data of every surface in doc and
// reports the vertex count change.
func reloadMeshes(w io.Writer, cache *meshdata.Cache, doc *authoring.Document) {
	for _, surf := range doc.Surfaces {
		id := doc.MeshID(surf.Name)

		// Characters created before the reload keep the old data.
		before := 0
		if old, ok := cache.Get(id); ok {
			before = old.VertexCount()
		}
		cache.Evict(id)

		fresh := cache.GetOrBuild(doc.Asset(surf.Name))
		fmt.Fprintf(w, "Reloaded %s: %d -> %d vertices\n", id, before, fresh.VertexCount())
	}
}

func cmdWatch(cfg *config.Config, args []string) {
	paths := args
	if len(paths) == 0 {
		paths = cfg.Data.AuthoringPaths
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: surfacetool watch <doc>... (or set data.authoring_paths)")
		os.Exit(1)
	}
	sort.Strings(paths)

	var watchers []*authoring.Watcher
	for _, path := range paths {
		w, err := authoring.NewWatcher(path, func(doc *authoring.Document, err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "Reload failed: %v\n", err)
				return
			}
			fmt.Println()
			reloadMeshes(os.Stdout, meshdata.Shared(), doc)
			printInfo(doc)
		})
		if err != nil {
			fatal(err)
		}
		watchers = append(watchers, w)
		fmt.Printf("Watching %s\n", w.Path())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	for _, w := range watchers {
		w.Close()
	}
}
