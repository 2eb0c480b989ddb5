//go:build ignore

// build.go - CicadaGallery build system
// Usage: go run build_tools/build.go [-target=TARGET] [-v]
// Targets: all, app, app-free, issuer, licensegen, test, clean, release

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const module = "cicadagallery"

// binary is one executable produced by the build.
type binary struct {
	source string
	output string
	tags   []string
}

var (
	rootDir string
	distDir string

	binaries = map[string]binary{
		"app":        {source: "./cmd/cicadagallery", output: "CicadaGallery"},
		"app-free":   {source: "./cmd/cicadagallery", output: "CicadaGallery-Free", tags: []string{"free"}},
		"issuer":     {source: "./cmd/issuer", output: "cicadagallery-issuer"},
		"licensegen": {source: "./cmd/licensegen", output: "licensegen"},
	}

	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
)

func init() {
	cwd, err := os.Getwd()
	if err != nil {
		panic(fmt.Sprintf("Failed to get current directory: %v", err))
	}
	rootDir = cwd
	if filepath.Base(cwd) == "build_tools" {
		rootDir = filepath.Dir(cwd)
	}
	distDir = filepath.Join(rootDir, "dist")

	if _, err := os.Stat(filepath.Join(rootDir, "go.mod")); err != nil {
		panic(fmt.Sprintf("go.mod not found in %s", rootDir))
	}
}

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	version := flag.String("version", "", "Version stamped into the binaries (default: git describe)")
	flag.Parse()

	printHeader()
	startTime := time.Now()

	v := *version
	if v == "" {
		v = gitOutput("describe", "--tags", "--always", "--dirty")
	}
	if v == "" {
		v = "0.0.0-dev"
	}

	switch *target {
	case "all":
		prepareDist()
		for _, name := range []string{"app", "app-free", "issuer", "licensegen"} {
			build(name, v, *verbose)
		}
	case "app", "app-free", "issuer", "licensegen":
		prepareDist()
		build(*target, v, *verbose)
	case "test":
		runTests(*verbose)
	case "clean":
		clean()
	case "release":
		clean()
		runTests(*verbose)
		prepareDist()
		os.Setenv("CGO_ENABLED", "0")
		for _, name := range []string{"app", "app-free"} {
			build(name, v, *verbose)
		}
	default:
		showHelp()
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(startTime).Round(time.Millisecond)))
}

func printHeader() {
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println(colorCyan + "        CicadaGallery - Build System       " + colorReset)
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println()
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

func gitOutput(args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = rootDir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func prepareDist() {
	if err := os.MkdirAll(distDir, 0o755); err != nil {
		printError(fmt.Sprintf("Failed to create %s: %v", distDir, err))
		os.Exit(1)
	}
}

// build compiles one binary with version information stamped into
// pkg/contracts. The free edition is the same source built with -tags free.
func build(name, version string, verbose bool) {
	b := binaries[name]
	output := b.output
	if runtime.GOOS == "windows" {
		output += ".exe"
	}
	outputPath := filepath.Join(distDir, output)

	pkg := module + "/pkg/contracts"
	ldflags := strings.Join([]string{
		"-s -w",
		fmt.Sprintf("-X %s.Version=%s", pkg, version),
		fmt.Sprintf("-X %s.BuildTime=%s", pkg, time.Now().UTC().Format(time.RFC3339)),
		fmt.Sprintf("-X %s.GitCommit=%s", pkg, gitOutput("rev-parse", "--short", "HEAD")),
	}, " ")

	args := []string{"build", "-trimpath", "-ldflags", ldflags, "-o", outputPath}
	if len(b.tags) > 0 {
		args = append(args, "-tags", strings.Join(b.tags, ","))
	}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, b.source)

	printInfo(fmt.Sprintf("Building %s...", name))
	cmd := exec.Command("go", args...)
	cmd.Dir = rootDir
	cmd.Stderr = os.Stderr
	if verbose {
		fmt.Printf("Running: go %s\n", strings.Join(args, " "))
		cmd.Stdout = os.Stdout
	}
	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Failed to build %s: %v", name, err))
		os.Exit(1)
	}

	if info, err := os.Stat(outputPath); err == nil {
		printSuccess(fmt.Sprintf("Built %s (%.1f MB)", output, float64(info.Size())/1024/1024))
	}
}

// runTests runs the suite for both editions.
func runTests(verbose bool) {
	for _, tags := range []string{"", "free"} {
		args := []string{"test", "-race"}
		if tags != "" {
			args = append(args, "-tags", tags)
			printInfo("Running Go tests (free edition)...")
		} else {
			printInfo("Running Go tests (premium edition)...")
		}
		if verbose {
			args = append(args, "-v")
		}
		args = append(args, "./...")

		cmd := exec.Command("go", args...)
		cmd.Dir = rootDir
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			printError(fmt.Sprintf("Go tests failed: %v", err))
			os.Exit(1)
		}
	}
	printSuccess("All tests passed")
}

func clean() {
	printInfo("Cleaning build artifacts...")
	if err := os.RemoveAll(distDir); err != nil {
		printError(fmt.Sprintf("Failed to remove %s: %v", distDir, err))
		os.Exit(1)
	}
	printSuccess("Build artifacts cleaned")
}

func showHelp() {
	fmt.Println("Usage: go run build_tools/build.go [-target=TARGET] [-v] [-version=X]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  all         Build every binary (default)")
	fmt.Println("  app         Premium desktop backend")
	fmt.Println("  app-free    Free edition (no verification key, no activation)")
	fmt.Println("  issuer      Reference issuance service")
	fmt.Println("  licensegen  Offline key and license tool")
	fmt.Println("  test        Run tests for both editions")
	fmt.Println("  clean       Remove dist/")
	fmt.Println("  release     Clean, test and build both app editions")
}
