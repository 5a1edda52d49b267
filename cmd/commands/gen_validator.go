package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"

	"sumeragi/privval"
)

var keyType string

// GenValidatorCmd生成共识验证者的公私钥对
var GenValidatorCmd = &cobra.Command{
	Use:     "gen-validator",
	Aliases: []string{"gen_validator"},
	Args:    cobra.NoArgs,
	Short:   "Generate new validator keypair",
	PreRun:  deprecateSnakeCase,
	RunE:    genValidator,
}

func init() {
	GenValidatorCmd.Flags().StringVar(&keyType, "key-type", "", "签名算法: ed25519 | bls，默认使用配置文件中的consensus.key_type")
}

func genValidator(cmd *cobra.Command, args []string) error {
	privValKeyFile := config.PrivValidatorKeyFile()
	if tmos.FileExists(privValKeyFile) {
		logger.Info("Found private validator", "keyFile", privValKeyFile)
		return nil
	}

	pv, err := privval.GenFilePV(privValKeyFile, validatorKeyType())
	if err != nil {
		return err
	}
	jsbz, err := tmjson.MarshalIndent(pv.Key, "", "  ")
	if err != nil {
		return err
	}
	pv.Save()

	fmt.Printf(`%v
`, string(jsbz))
	return nil
}

func validatorKeyType() string {
	if keyType != "" {
		return keyType
	}
	return config.Consensus.KeyType
}
