package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/manifoldco/promptui"

	"github.com/ramonsune/custodia-360-sub010/internal/client"
	"github.com/ramonsune/custodia-360-sub010/internal/client/domain"
	"github.com/ramonsune/custodia-360-sub010/internal/client/repository"
	"github.com/ramonsune/custodia-360-sub010/internal/shared/log"
)

const usage = `usage: custodiactl [flags] <command>

commands:
  run [job]                          run a guard job (prompts when job is omitted)
  invite <entityId>                  print the onboarding link of an entity
  profile set <name> <server-url>    add or update a profile
  profile list                       list profiles
  profile rm <name>                  remove a profile

flags:
`

func main() {
	logger := log.New("ctl")

	profilesPath := flag.String("profiles", defaultProfilesPath(), "profiles file")
	profileName := flag.String("profile", "default", "profile to use")
	cronHeader := flag.String("header", "", "cron marker header for 'profile set'")
	secret := flag.String("secret", "", "cron signing secret for 'profile set'")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	repo := &repository.TOMLProfileRepository{FilePath: *profilesPath}
	c := &client.Client{
		Profiles: repo,
		Logger:   &logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "run":
		err = runJob(ctx, c, *profileName, args[1:])
	case "invite":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		var reply client.InviteReply
		reply, err = c.InviteLink(ctx, *profileName, args[1])
		if err == nil {
			fmt.Println(reply.URL)
		}
	case "profile":
		err = profileCmd(repo, args[1:], *cronHeader, *secret)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runJob(ctx context.Context, c *client.Client, profile string, args []string) error {
	var job string
	if len(args) > 0 {
		job = args[0]
	} else {
		prompt := promptui.Select{
			Label: "Job",
			Items: client.Jobs,
		}
		_, picked, err := prompt.Run()
		if err != nil {
			return fmt.Errorf("failed to pick job: %w", err)
		}
		job = picked
	}

	reply, err := c.RunJob(ctx, profile, job)
	if err != nil {
		return err
	}
	fmt.Printf("%s: processed %d\n", job, reply.Processed)
	for _, n := range reply.Notes {
		fmt.Printf("  - %s\n", n)
	}
	return nil
}

func profileCmd(repo domain.ProfileRepository, args []string, header, secret string) error {
	if len(args) == 0 {
		return errors.New("profile: missing subcommand")
	}
	switch args[0] {
	case "set":
		if len(args) != 3 {
			return errors.New("profile set: want <name> <server-url>")
		}
		return repo.Set(args[1], domain.Profile{
			ServerURL:  args[2],
			CronHeader: header,
			Secret:     secret,
		})
	case "list":
		profiles, err := repo.List()
		if err != nil {
			return err
		}
		for _, p := range profiles {
			signed := ""
			if p.Secret != "" {
				signed = " (signed)"
			}
			fmt.Printf("%s\t%s%s\n", p.Name, p.ServerURL, signed)
		}
		return nil
	case "rm":
		if len(args) != 2 {
			return errors.New("profile rm: want <name>")
		}
		confirm := promptui.Prompt{
			Label:     fmt.Sprintf("Remove profile %s", args[1]),
			IsConfirm: true,
		}
		if _, err := confirm.Run(); err != nil {
			return nil
		}
		return repo.Delete(args[1])
	}
	return fmt.Errorf("profile: unknown subcommand %q", args[0])
}

func defaultProfilesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "custodiactl.toml"
	}
	return filepath.Join(dir, "custodia", "profiles.toml")
}
