package main

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/mintvaultlabs/mintvault"
	"github.com/mintvaultlabs/mintvault/vaultcfg"
)

func main() {
	app := cli.NewApp()
	app.Name = "vaultcli"
	app.Usage = "control plane for the mintvault custodial orchestrator"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "nodeurl",
			Value: "http://localhost",
			Usage: "base URL of the ledger node's REST endpoint",
		},
		cli.UintFlag{
			Name:  "nodeport",
			Value: 4001,
			Usage: "port of the ledger node's REST endpoint",
		},
		cli.StringFlag{
			Name:  "nodetoken",
			Usage: "API token of the ledger node",
		},
		cli.StringFlag{
			Name:  "fundingphrasefile",
			Usage: "file holding the funding account's recovery phrase",
		},
		cli.Uint64Flag{
			Name:  "maxwaitrounds",
			Usage: "rounds to observe before a confirmation wait times out",
		},
		cli.StringFlag{
			Name:  "dappname",
			Usage: "ARC-2 dApp name attached to transaction notes",
		},
		cli.StringFlag{
			Name:  "loglevel",
			Value: "info",
			Usage: "logging level {trace, debug, info, warn, error, critical}",
		},
	}
	app.Commands = []cli.Command{
		provisionCommand,
		fundCommand,
		mintCommand,
		transferCommand,
		tradeCommand,
		exportCommand,
		closeCommand,
		assetCommand,
		accountCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[vaultcli] %v\n", err)
	os.Exit(1)
}

// getVault assembles a Vault from the global flags of the invocation.
func getVault(ctx *cli.Context) (*mintvault.Vault, error) {
	cfg := vaultcfg.DefaultConfig()
	cfg.NodeURL = ctx.GlobalString("nodeurl")
	cfg.NodePort = uint16(ctx.GlobalUint("nodeport"))
	cfg.NodeToken = ctx.GlobalString("nodetoken")
	cfg.FundingPhraseFile = ctx.GlobalString("fundingphrasefile")
	cfg.LogLevel = ctx.GlobalString("loglevel")
	if ctx.GlobalIsSet("maxwaitrounds") {
		cfg.MaxWaitRounds = ctx.GlobalUint64("maxwaitrounds")
	}
	if ctx.GlobalIsSet("dappname") {
		cfg.DappName = ctx.GlobalString("dappname")
	}

	validated, err := vaultcfg.ValidateConfig(cfg)
	if err != nil {
		return nil, err
	}

	return vaultcfg.NewVault(validated)
}

// promptPassphrase reads a passphrase from the terminal without echoing it.
func promptPassphrase(prompt string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("unable to read passphrase: %w", err)
	}
	if len(passphrase) == 0 {
		return "", fmt.Errorf("empty passphrase")
	}

	return string(passphrase), nil
}

// printRespJSON renders a command result as indented JSON on stdout.
func printRespJSON(resp interface{}) error {
	out, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	return nil
}
