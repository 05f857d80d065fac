// Command atsi is a rootless Linux container runtime for single-shot
// workload execution.
package main

import (
	"fmt"
	"log"
	"runtime/debug"

	"github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	"github.com/samber/lo"

	"github.com/queer/atsi/pkg/app"
	"github.com/queer/atsi/pkg/engine"
	"github.com/queer/atsi/pkg/names"
	"github.com/queer/atsi/pkg/registry"
	"github.com/queer/atsi/pkg/utils"
)

const defaultVersion = "unversioned"

var (
	commit  string
	version = defaultVersion
	date    string
)

func main() {
	// A re-exec'd clone child skips CLI parsing entirely and jumps
	// straight to the container entrypoint.
	if engine.IsReexec() {
		engine.RunInContainer()
		return
	}

	updateBuildInfo()

	var (
		debugFlag     bool
		immutableFlag bool
		jsonFlag      bool
		name          string
		alpineVersion = "3.20"
		packages      []string
		portArgs      []string
		rwMountArgs   []string
		roMountArgs   []string
		envArgs       []string
	)

	flaggy.SetName("atsi")
	flaggy.SetDescription("A rootless container runtime for single-shot workloads")
	flaggy.Bool(&debugFlag, "d", "debug", "enable debug logging")

	runCmd := flaggy.NewSubcommand("run")
	runCmd.Description = "run a command in a fresh container"
	var command string
	runCmd.AddPositionalValue(&command, "command", 1, true, "the command to run as PID 1 inside the guest")
	runCmd.String(&name, "n", "name", "container name (random if unset)")
	runCmd.StringSlice(&packages, "P", "package", "package to install before exec (repeatable)")
	runCmd.StringSlice(&portArgs, "p", "port", "host:guest port forward (repeatable)")
	runCmd.StringSlice(&rwMountArgs, "", "rw", "host:guest read-write bind mount (repeatable)")
	runCmd.StringSlice(&roMountArgs, "", "ro", "host:guest read-only bind mount (repeatable)")
	runCmd.String(&alpineVersion, "", "alpine", "Alpine version to use")
	runCmd.StringSlice(&envArgs, "e", "env", "K=V environment assignment (repeatable)")
	runCmd.Bool(&immutableFlag, "i", "immutable", "remount the rootfs read-only after package install")

	psCmd := flaggy.NewSubcommand("ps")
	psCmd.Description = "list live containers"
	psCmd.Bool(&jsonFlag, "", "json", "emit JSON instead of a table")

	flaggy.AttachSubcommand(runCmd, 1)
	flaggy.AttachSubcommand(psCmd, 1)
	flaggy.Parse()

	a, err := app.New(debugFlag, version)
	if err != nil {
		log.Fatal(err.Error())
	}

	switch {
	case runCmd.Used:
		err = doRun(a, runCommandArgs{
			name:          name,
			command:       command,
			packages:      packages,
			portArgs:      portArgs,
			rwMountArgs:   rwMountArgs,
			roMountArgs:   roMountArgs,
			envArgs:       envArgs,
			alpineVersion: alpineVersion,
			immutable:     immutableFlag,
		})
	case psCmd.Used:
		err = doPs(a, jsonFlag)
	default:
		flaggy.ShowHelpAndExit("expected a subcommand")
	}

	if err != nil {
		newErr := errors.Wrap(err, 0)
		stackTrace := newErr.ErrorStack()
		a.Log.Error(stackTrace)
		log.Fatalf("atsi: %s", err.Error())
	}
}

type runCommandArgs struct {
	name          string
	command       string
	packages      []string
	portArgs      []string
	rwMountArgs   []string
	roMountArgs   []string
	envArgs       []string
	alpineVersion string
	immutable     bool
}

func doRun(a *app.App, args runCommandArgs) error {
	name := args.name
	if name == "" {
		name = names.Generate()
	}

	ports, err := parsePorts(args.portArgs)
	if err != nil {
		return err
	}
	rwMounts, err := parseMounts(args.rwMountArgs)
	if err != nil {
		return err
	}
	roMounts, err := parseMounts(args.roMountArgs)
	if err != nil {
		return err
	}
	envVars, err := parseEnvVars(args.envArgs)
	if err != nil {
		return err
	}

	req := &engine.RunRequest{
		Name:          name,
		Command:       args.command,
		Packages:      args.packages,
		Ports:         ports,
		RWMounts:      rwMounts,
		ROMounts:      roMounts,
		Immutable:     args.immutable,
		AlpineVersion: args.alpineVersion,
		EnvVars:       envVars,
	}

	return engine.New(a.Layout, a.Log).Run(req)
}

func doPs(a *app.App, jsonFlag bool) error {
	entries, err := registry.New(a.Layout, a.Log).List()
	if err != nil {
		return err
	}

	var output string
	if jsonFlag {
		output, err = registry.RenderJSON(entries)
	} else {
		output, err = registry.RenderTable(entries)
	}
	if err != nil {
		return err
	}

	fmt.Println(output)
	return nil
}

func updateBuildInfo() {
	if version != defaultVersion {
		return
	}

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if revision, ok := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.revision"
	}); ok {
		commit = revision.Value
		version = utils.SafeTruncate(commit, 7)
	}

	if ts, ok := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.time"
	}); ok {
		date = ts.Value
	}
}
