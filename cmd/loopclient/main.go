// Command loopclient is the counterparty side of a loop-out swap: it asks a
// loopd server for a swap, pays the returned invoice, and sweeps the
// preimage-revealing Taproot HTLC output once the invoice is settled.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btclog"
	"github.com/urfave/cli"

	"github.com/lightninglabs/loopout/claimer"
	"github.com/lightninglabs/loopout/lngateway"
	"github.com/lightninglabs/loopout/mempool"
	"github.com/lightninglabs/loopout/swapd"
)

func main() {
	backend := btclog.NewBackend(os.Stderr)
	claimerLog := backend.Logger("CLAM")
	claimerLog.SetLevel(btclog.LevelInfo)
	claimer.UseLogger(claimerLog)

	app := cli.NewApp()
	app.Name = "loopclient"
	app.Usage = "request and claim loop-out swaps against a loopd server"
	app.Flags = []cli.Flag{serverFlag, macaroonFlag, networkFlag}
	app.Commands = []cli.Command{
		loopOutCommand,
		payCommand,
		claimCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "loopclient: %v\n", err)
		os.Exit(1)
	}
}

// swapRecord is the on-disk shape loopOutCommand writes and claimCommand
// reads back, bridging the two invocations of a CLI that otherwise keeps no
// state of its own between runs.
type swapRecord struct {
	Response swapd.LoopOutResponse `json:"response"`
	PrivKey  string                `json:"priv_key_hex"`
}

var loopOutCommand = cli.Command{
	Name:      "loopout",
	Usage:     "request a new loop-out swap",
	ArgsUsage: "amt_sat",
	Flags: []cli.Flag{
		keyFlag,
		cli.StringFlag{
			Name:  "out",
			Usage: "file to write the swap record to, for a later claim",
			Value: "swap.json",
		},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.ShowCommandHelp(ctx, "loopout")
		}

		var amountSat int64
		if _, err := fmt.Sscanf(ctx.Args().Get(0), "%d", &amountSat); err != nil {
			return fmt.Errorf("invalid amt_sat: %w", err)
		}

		privKey, err := resolveOrGenerateKey(ctx.String("privkey"))
		if err != nil {
			return err
		}

		client, err := newServerClient(ctx.GlobalString("server"), ctx.GlobalString("macaroonpath"))
		if err != nil {
			return err
		}

		resp, err := client.NewLoopOut(context.Background(), privKey, amountSat)
		if err != nil {
			return err
		}

		record := swapRecord{
			Response: *resp,
			PrivKey:  hex.EncodeToString(privKey.Serialize()),
		}
		if err := writeSwapRecord(ctx.String("out"), record); err != nil {
			return err
		}

		fmt.Printf("swap requested: invoice=%s address=%s cltv_expiry=%d fee=%d\n",
			resp.Invoice, resp.Address, resp.LoopInfo.CltvExpiry, resp.LoopInfo.Fee)
		fmt.Printf("swap record written to %s\n", ctx.String("out"))

		return nil
	},
}

var payCommand = cli.Command{
	Name:      "pay",
	Usage:     "pay an arbitrary bolt11 invoice through the configured lnd node",
	ArgsUsage: "bolt11",
	Flags: []cli.Flag{
		lndAddressFlag, lndCertFlag, lndMacaroonFlag,
		cli.Int64Flag{Name: "fee_limit_sat", Value: 1000},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.ShowCommandHelp(ctx, "pay")
		}

		gw, err := dialLnGateway(ctx)
		if err != nil {
			return err
		}
		defer gw.Close()

		preimage, err := gw.PayInvoiceSync(
			context.Background(), ctx.Args().Get(0),
			btcutil.Amount(ctx.Int64("fee_limit_sat")),
		)
		if err != nil {
			return err
		}

		fmt.Printf("payment succeeded, preimage=%s\n", preimage.String())
		return nil
	},
}

var claimCommand = cli.Command{
	Name:  "claim",
	Usage: "pay a swap's invoice and sweep its on-chain HTLC output",
	Flags: []cli.Flag{
		lndAddressFlag, lndCertFlag, lndMacaroonFlag,
		cli.StringFlag{Name: "swapfile", Value: "swap.json"},
		cli.StringFlag{Name: "dest", Usage: "destination address for the swept funds"},
		cli.Int64Flag{Name: "fee_sat", Usage: "on-chain fee to subtract from the claim", Value: 500},
		cli.Int64Flag{Name: "payment_fee_limit_sat", Value: 1000},
		cli.StringFlag{Name: "mempool_url", Value: "https://mempool.space/api"},
	},
	Action: func(ctx *cli.Context) error {
		record, err := readSwapRecord(ctx.String("swapfile"))
		if err != nil {
			return err
		}

		privKeyBytes, err := hexDecode(record.PrivKey)
		if err != nil {
			return fmt.Errorf("malformed swap record: %w", err)
		}
		privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)

		netParams, err := netParamsFromName(ctx.GlobalString("network"))
		if err != nil {
			return err
		}

		destAddr, err := parseDestAddr(ctx.String("dest"), netParams)
		if err != nil {
			return err
		}

		mempoolClient := mempool.NewClient(&mempool.Config{BaseURL: ctx.String("mempool_url")})
		bridge := mempool.NewChainBridge(mempool.DefaultChainBridgeConfig(mempoolClient))
		if err := bridge.Start(); err != nil {
			return err
		}
		defer bridge.Stop()

		utxoTx, err := mempoolClient.GetTransaction(context.Background(), record.Response.Txid)
		if err != nil {
			return fmt.Errorf("failed to look up funding utxo: %w", err)
		}
		if int(record.Response.Vout) >= len(utxoTx.Vout) {
			return fmt.Errorf("funding utxo vout out of range")
		}
		utxoAmountSat := utxoTx.Vout[record.Response.Vout].Value

		buyerPubkeyHex := hex.EncodeToString(
			btcecSchnorrPubkey(privKey),
		)
		full, err := toFullLoopOut(&record.Response, buyerPubkeyHex, utxoAmountSat)
		if err != nil {
			return err
		}

		gw, err := dialLnGateway(ctx)
		if err != nil {
			return err
		}
		defer gw.Close()

		claimant, err := claimer.New(&claimer.Config{
			NetParams:          netParams,
			LN:                 gw,
			Signer:             &localKeySigner{privKey: privKey},
			Bridge:             bridge,
			PaymentFeeLimitSat: ctx.Int64("payment_fee_limit_sat"),
		})
		if err != nil {
			return err
		}

		tx, err := claimant.Claim(
			context.Background(), full, destAddr, ctx.Int64("fee_sat"),
		)
		if err != nil {
			return err
		}

		fmt.Printf("claim broadcast: txid=%s\n", tx.TxHash())
		return nil
	},
}

func resolveOrGenerateKey(flagVal string) (*btcec.PrivateKey, error) {
	if flagVal == "" {
		return btcec.NewPrivateKey()
	}
	return loadPrivKeyHex(flagVal)
}

func writeSwapRecord(path string, record swapRecord) error {
	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0600)
}

func readSwapRecord(path string) (*swapRecord, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read swap record: %w", err)
	}

	var record swapRecord
	if err := json.Unmarshal(contents, &record); err != nil {
		return nil, fmt.Errorf("malformed swap record: %w", err)
	}

	return &record, nil
}

func dialLnGateway(ctx *cli.Context) (*lngateway.Gateway, error) {
	return lngateway.New(context.Background(), &lngateway.Config{
		LndAddress:      ctx.String("lnd_address"),
		TLSCertPath:     ctx.String("lnd_cert"),
		MacaroonPath:    ctx.String("lnd_macaroon"),
		Network:         ctx.GlobalString("network"),
		InvoiceLifetime: lngateway.DefaultInvoiceLifetime,
	})
}
