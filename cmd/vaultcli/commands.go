package main

import (
	"context"

	"github.com/urfave/cli"

	"github.com/mintvaultlabs/mintvault"
	"github.com/mintvaultlabs/mintvault/custody"
	"github.com/mintvaultlabs/mintvault/mintgarden"
)

var provisionCommand = cli.Command{
	Name:  "provision",
	Usage: "generate a new custodial account sealed with a passphrase",
	Description: `
	Generates a fresh ledger account, seals its recovery phrase with the
	passphrase read from the terminal and prints the address and sealed
	phrase. The account is not funded; use the fund command for that.`,
	Action: func(ctx *cli.Context) error {
		vault, err := getVault(ctx)
		if err != nil {
			return err
		}

		passphrase, err := promptPassphrase("New account passphrase")
		if err != nil {
			return err
		}

		account, err := vault.ProvisionAccount(passphrase)
		if err != nil {
			return err
		}

		return printRespJSON(struct {
			Address         string `json:"address"`
			EncryptedPhrase string `json:"encrypted_phrase"`
		}{
			Address:         account.Address,
			EncryptedPhrase: account.EncryptedPhrase,
		})
	},
}

var fundCommand = cli.Command{
	Name:  "fund",
	Usage: "seed a provisioned custodial account with its initial balance",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "addr",
			Usage: "address of the custodial account",
		},
		cli.StringFlag{
			Name:  "encryptedphrase",
			Usage: "the account's sealed recovery phrase",
		},
		cli.Uint64Flag{
			Name:  "amount",
			Usage: "initial balance in the ledger's base unit",
			Value: mintgarden.MinAccountBalance,
		},
	},
	Action: func(ctx *cli.Context) error {
		vault, err := getVault(ctx)
		if err != nil {
			return err
		}

		passphrase, err := promptPassphrase("Account passphrase")
		if err != nil {
			return err
		}

		result, err := vault.FundAccount(
			context.Background(), &custody.Account{
				Address:         ctx.String("addr"),
				EncryptedPhrase: ctx.String("encryptedphrase"),
			}, passphrase, ctx.Uint64("amount"),
		)
		if err != nil {
			return err
		}

		return printRespJSON(result)
	},
}

var mintCommand = cli.Command{
	Name:  "mint",
	Usage: "mint a run of NFT editions as one atomic batch",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "code",
			Usage: "short unique template code, becomes the unit name",
		},
		cli.Uint64Flag{
			Name:  "total",
			Usage: "number of editions in the run",
			Value: 1,
		},
		cli.StringFlag{
			Name:  "url",
			Usage: "content URL shared by the editions",
		},
		cli.StringFlag{
			Name:  "metadatahash",
			Usage: "hex-encoded 32-byte content hash",
		},
		cli.BoolFlag{
			Name: "ephemeral",
			Usage: "mint from a freshly generated creator account " +
				"instead of the funding account",
		},
	},
	Action: func(ctx *cli.Context) error {
		vault, err := getVault(ctx)
		if err != nil {
			return err
		}

		total := ctx.Uint64("total")
		editions := make([]*mintgarden.EditionSpec, total)
		for i := range editions {
			editions[i] = &mintgarden.EditionSpec{
				Code:          ctx.String("code"),
				Edition:       uint64(i) + 1,
				TotalEditions: total,
				URL:           ctx.String("url"),
				MetadataHash:  ctx.String("metadatahash"),
			}
		}

		var opts []mintvault.MintOption
		if ctx.Bool("ephemeral") {
			passphrase, err := promptPassphrase(
				"Creator passphrase",
			)
			if err != nil {
				return err
			}
			opts = append(
				opts, mintvault.WithEphemeralCreator(passphrase),
			)
		}

		receipt, err := vault.MintEditions(
			context.Background(), editions, opts...,
		)
		if err != nil {
			return err
		}

		return printRespJSON(receipt)
	},
}

var transferCommand = cli.Command{
	Name:  "transfer",
	Usage: "move a minted asset into a custodial account via clawback",
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name:  "assetid",
			Usage: "ledger id of the asset",
		},
		cli.StringFlag{
			Name:  "addr",
			Usage: "address of the receiving custodial account",
		},
		cli.StringFlag{
			Name:  "encryptedphrase",
			Usage: "the receiving account's sealed recovery phrase",
		},
		cli.StringFlag{
			Name: "holder",
			Usage: "current holder of the asset, defaults to the " +
				"funding account",
		},
	},
	Action: func(ctx *cli.Context) error {
		vault, err := getVault(ctx)
		if err != nil {
			return err
		}

		passphrase, err := promptPassphrase("Recipient passphrase")
		if err != nil {
			return err
		}

		result, err := vault.TransferViaClawback(
			context.Background(), &custody.Account{
				Address:         ctx.String("addr"),
				EncryptedPhrase: ctx.String("encryptedphrase"),
			}, passphrase, ctx.Uint64("assetid"),
			ctx.String("holder"),
		)
		if err != nil {
			return err
		}

		return printRespJSON(result)
	},
}

var tradeCommand = cli.Command{
	Name:  "trade",
	Usage: "move an asset between two already opted-in custodial holders",
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name:  "assetid",
			Usage: "ledger id of the asset",
		},
		cli.StringFlag{
			Name:  "from",
			Usage: "current holder of the asset",
		},
		cli.StringFlag{
			Name:  "to",
			Usage: "receiving holder, must have opted in already",
		},
	},
	Action: func(ctx *cli.Context) error {
		vault, err := getVault(ctx)
		if err != nil {
			return err
		}

		result, err := vault.TransferBetweenHolders(
			context.Background(), ctx.Uint64("assetid"),
			ctx.String("from"), ctx.String("to"),
		)
		if err != nil {
			return err
		}

		return printRespJSON(result)
	},
}

var exportCommand = cli.Command{
	Name:  "export",
	Usage: "release an asset from custody to an external wallet",
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name:  "assetid",
			Usage: "ledger id of the asset",
		},
		cli.StringFlag{
			Name:  "addr",
			Usage: "custodial address currently holding the asset",
		},
		cli.StringFlag{
			Name:  "encryptedphrase",
			Usage: "the holding account's sealed recovery phrase",
		},
		cli.StringFlag{
			Name: "recipient",
			Usage: "external wallet address, must have opted into " +
				"the asset",
		},
	},
	Action: func(ctx *cli.Context) error {
		vault, err := getVault(ctx)
		if err != nil {
			return err
		}

		passphrase, err := promptPassphrase("Owner passphrase")
		if err != nil {
			return err
		}

		result, err := vault.ExportAsset(
			context.Background(), &custody.Account{
				Address:         ctx.String("addr"),
				EncryptedPhrase: ctx.String("encryptedphrase"),
			}, passphrase, ctx.Uint64("assetid"),
			ctx.String("recipient"),
		)
		if err != nil {
			return err
		}

		return printRespJSON(result)
	},
}

var closeCommand = cli.Command{
	Name:  "close",
	Usage: "close an empty custodial account and reclaim its balance",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "addr",
			Usage: "address of the custodial account",
		},
		cli.StringFlag{
			Name:  "encryptedphrase",
			Usage: "the account's sealed recovery phrase",
		},
		cli.StringFlag{
			Name: "closeto",
			Usage: "address receiving the remaining balance, " +
				"defaults to the funding account",
		},
	},
	Action: func(ctx *cli.Context) error {
		vault, err := getVault(ctx)
		if err != nil {
			return err
		}

		passphrase, err := promptPassphrase("Account passphrase")
		if err != nil {
			return err
		}

		result, err := vault.CloseAccount(
			context.Background(), &custody.Account{
				Address:         ctx.String("addr"),
				EncryptedPhrase: ctx.String("encryptedphrase"),
			}, passphrase, ctx.String("closeto"),
		)
		if err != nil {
			return err
		}

		return printRespJSON(result)
	},
}

var assetCommand = cli.Command{
	Name:  "asset",
	Usage: "show the ledger parameters of a minted asset",
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name:  "assetid",
			Usage: "ledger id of the asset",
		},
	},
	Action: func(ctx *cli.Context) error {
		vault, err := getVault(ctx)
		if err != nil {
			return err
		}

		record, err := vault.AssetRecord(
			context.Background(), ctx.Uint64("assetid"),
		)
		if err != nil {
			return err
		}

		return printRespJSON(record)
	},
}

var accountCommand = cli.Command{
	Name:  "account",
	Usage: "show the ledger state of an account",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "addr",
			Usage: "address of the account",
		},
	},
	Action: func(ctx *cli.Context) error {
		vault, err := getVault(ctx)
		if err != nil {
			return err
		}

		info, err := vault.AccountInfo(
			context.Background(), ctx.String("addr"),
		)
		if err != nil {
			return err
		}

		return printRespJSON(struct {
			Address    string `json:"address"`
			Balance    uint64 `json:"balance"`
			MinBalance uint64 `json:"min_balance"`
			NumAssets  int    `json:"num_assets"`
			Status     string `json:"status"`
		}{
			Address:    info.Address,
			Balance:    info.Balance,
			MinBalance: mintvault.MinBalance(&info),
			NumAssets:  len(info.Assets),
			Status:     info.Status,
		})
	},
}
