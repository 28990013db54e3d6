package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var amoCmd = &cobra.Command{
	Use:   "amo",
	Short: "Manage the AmoCRM OAuth connection",
}

var amoAuthURLCmd = &cobra.Command{
	Use:   "auth-url",
	Short: "Print the URL that authorizes this integration in AmoCRM",
	Run: func(cmd *cobra.Command, _ []string) {
		res, err := amoUsecase.AuthURL(cmd.Context())
		exitOnError(err)
		fmt.Println(res.URL)
	},
}

var amoExchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Exchange an authorization code for tokens and store them",
	Run: func(cmd *cobra.Command, _ []string) {
		code, _ := cmd.Flags().GetString("code")
		_, err := amoUsecase.ExchangeCode(cmd.Context(), code)
		exitOnError(err)
		printJSON(amoUsecase.TokenStatus(cmd.Context()))
	},
}

var amoRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rotate the access token using the stored refresh token",
	Run: func(cmd *cobra.Command, _ []string) {
		status, err := amoUsecase.RefreshToken(cmd.Context())
		exitOnError(err)
		printJSON(status)
	},
}

var amoTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check the connection: account, users and pipelines",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		status := amoUsecase.TestConnection(ctx)
		printJSON(status)
		if !status.Success {
			os.Exit(1)
		}
	},
}

func init() {
	amoExchangeCmd.Flags().String("code", "", "authorization code from the AmoCRM redirect")
	_ = amoExchangeCmd.MarkFlagRequired("code")

	amoCmd.AddCommand(amoAuthURLCmd, amoExchangeCmd, amoRefreshCmd, amoTestCmd)
	rootCmd.AddCommand(amoCmd)
}

func exitOnError(err error) {
	if err != nil {
		logrus.Errorf("[AMOCRM] %v", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
