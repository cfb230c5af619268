// Command safelist adds a phone number to the Twilio Verify safe list, so
// the human agent's number is never blocked by fraud guard.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	twiliohandoff "github.com/knolabs/daela/pkg/handoff/twilio"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config; handoff.settings supplies the credentials")
	phone := flag.String("phone", "", "E.164 number to safelist (defaults to handoff.phone_number)")
	flag.Parse()

	cfg, number, err := load(*configPath, *phone)
	if err != nil {
		fmt.Fprintln(os.Stderr, "safelist:", err)
		os.Exit(2)
	}
	sid, err := twiliohandoff.NewSafelister(cfg).Add(number)
	if err != nil {
		fmt.Fprintln(os.Stderr, "safelist:", err)
		os.Exit(1)
	}
	fmt.Println(sid)
}

// load reads credentials from the config file when given, with
// TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN taking precedence.
func load(path, phone string) (twiliohandoff.Config, string, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return twiliohandoff.Config{}, "", fmt.Errorf("read config: %w", err)
		}
	}
	_ = v.BindEnv("handoff.settings.account_sid", "TWILIO_ACCOUNT_SID")
	_ = v.BindEnv("handoff.settings.auth_token", "TWILIO_AUTH_TOKEN")

	cfg := twiliohandoff.Config{
		AccountSID: os.ExpandEnv(v.GetString("handoff.settings.account_sid")),
		AuthToken:  os.ExpandEnv(v.GetString("handoff.settings.auth_token")),
	}
	if strings.TrimSpace(phone) == "" {
		phone = os.ExpandEnv(v.GetString("handoff.phone_number"))
	}
	if strings.TrimSpace(phone) == "" {
		return cfg, "", fmt.Errorf("-phone or handoff.phone_number is required")
	}
	return cfg, phone, nil
}
