package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Theia-Protocol/nft-escrow-sc-near/curve"
	"github.com/Theia-Protocol/nft-escrow-sc-near/escrow"
	"github.com/Theia-Protocol/nft-escrow-sc-near/fixed"
)

// configFromViper assembles the activation config from the config file and
// the ESCROW_* environment.
func configFromViper() escrow.Config {
	curveArgs := make(map[string]string)
	for name, value := range viper.GetStringMapString("curve_args") {
		curveArgs[name] = value
	}
	return escrow.Config{
		OwnerID:            viper.GetString("owner_id"),
		StableCoinID:       viper.GetString("stable_coin_id"),
		StableCoinDecimals: uint8(viper.GetUint("stable_coin_decimals")),
		CurveType:          viper.GetString("curve_type"),
		CurveArgs:          curveArgs,
		TreasuryID:         viper.GetString("treasury_id"),
		FinderID:           viper.GetString("finder_id"),
		Name:               viper.GetString("name"),
		Symbol:             viper.GetString("symbol"),
		BaseURI:            viper.GetString("base_uri"),
		BlankMediaURI:      viper.GetString("blank_media_uri"),
		MaxSupply:          viper.GetString("max_supply"),
		PreMintAmount:      viper.GetString("pre_mint_amount"),
		FundThreshold:      viper.GetString("fund_threshold"),
		FundingPeriod:      viper.GetUint64("funding_period"),
		BufferPeriod:       viper.GetUint64("buffer_period"),
		ConversionPeriod:   viper.GetUint64("conversion_period"),
		TreasuryFee:        viper.GetUint32("treasury_fee"),
		FinderFee:          viper.GetUint32("finder_fee"),
	}
}

// initArgs is the constructor blob: who runs the campaign and on what
// curve. Matches the shape the deployment scripts submit.
type initArgs struct {
	OwnerID            string            `json:"owner_id"`
	StableCoinID       string            `json:"stable_coin_id"`
	StableCoinDecimals uint8             `json:"stable_coin_decimals"`
	CurveType          string            `json:"curve_type"`
	CurveArgs          map[string]string `json:"curve_args"`
	TreasuryID         string            `json:"treasury_id"`
}

// activeArgs is the activation blob: the campaign's economics and windows.
type activeArgs struct {
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	BaseURI          string `json:"base_uri,omitempty"`
	BlankMediaURI    string `json:"blank_media_uri,omitempty"`
	MaxSupply        string `json:"max_supply"`
	FinderID         string `json:"finder_id,omitempty"`
	PreMintAmount    string `json:"pre_mint_amount"`
	FundThreshold    string `json:"fund_threshold"`
	FundingPeriod    uint64 `json:"funding_period,omitempty"`
	BufferPeriod     uint64 `json:"buffer_period"`
	ConversionPeriod uint64 `json:"conversion_period"`
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// newInitArgsCmd validates the curve configuration and prints the
// constructor JSON blob.
func newInitArgsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-args",
		Short: "Validate the curve config and print the constructor JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFromViper()

			if _, err := curve.Parse(cfg.CurveType, cfg.CurveArgs, cfg.StableCoinDecimals); err != nil {
				return fmt.Errorf("curve config rejected: %w", err)
			}

			log.Info().Str("curve", cfg.CurveType).Msg("curve config is valid")
			return printJSON(cmd, initArgs{
				OwnerID:            cfg.OwnerID,
				StableCoinID:       cfg.StableCoinID,
				StableCoinDecimals: cfg.StableCoinDecimals,
				CurveType:          cfg.CurveType,
				CurveArgs:          cfg.CurveArgs,
				TreasuryID:         cfg.TreasuryID,
			})
		},
	}
}

// newActiveArgsCmd validates the campaign amounts and prints the
// activation JSON blob.
func newActiveArgsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active-args",
		Short: "Validate the campaign amounts and print the activation JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFromViper()

			amounts := map[string]string{
				"max_supply":     cfg.MaxSupply,
				"fund_threshold": cfg.FundThreshold,
			}
			if cfg.PreMintAmount != "" {
				amounts["pre_mint_amount"] = cfg.PreMintAmount
			}
			for field, raw := range amounts {
				if _, err := fixed.Parse(raw, cfg.StableCoinDecimals); err != nil {
					return fmt.Errorf("invalid %s: %w", field, err)
				}
			}
			if cfg.ConversionPeriod == 0 {
				return fmt.Errorf("conversion_period must be set")
			}

			log.Info().Str("name", cfg.Name).Msg("activation config is valid")
			return printJSON(cmd, activeArgs{
				Name:             cfg.Name,
				Symbol:           cfg.Symbol,
				BaseURI:          cfg.BaseURI,
				BlankMediaURI:    cfg.BlankMediaURI,
				MaxSupply:        cfg.MaxSupply,
				FinderID:         cfg.FinderID,
				PreMintAmount:    cfg.PreMintAmount,
				FundThreshold:    cfg.FundThreshold,
				FundingPeriod:    cfg.FundingPeriod,
				BufferPeriod:     cfg.BufferPeriod,
				ConversionPeriod: cfg.ConversionPeriod,
			})
		},
	}
}
