// Command register signs up an account against a running API from the
// command line, applying the same checks as the web form.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
	"github.com/oksasatya/go-membership-affiliate/pkg/registration"
)

type options struct {
	API      string `long:"api" env:"REGISTER_API_URL" default:"http://localhost:8080" description:"Base URL of the API"`
	Email    string `long:"email" required:"true" description:"Account email"`
	Password string `long:"password" required:"true" description:"Account password"`
	Confirm  string `long:"confirm" required:"true" description:"Password confirmation"`
	Plan     string `long:"plan" default:"member" choice:"member" choice:"affiliate" description:"Account type"`
	Age      bool   `long:"age" description:"Confirm you are 18 years old or over"`
	Terms    bool   `long:"terms" description:"Accept the membership terms and conditions"`
	Verbose  bool   `short:"v" long:"verbose" description:"Debug logging"`
}

func main() {
	_ = godotenv.Load()

	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	env := "production"
	if opts.Verbose {
		env = "development"
	}
	logger := helpers.NewLogger("register", env)

	if err := run(opts, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options, logger *logrus.Logger) error {
	form := &registration.Form{}
	fields := []struct{ name, value string }{
		{registration.FieldEmail, opts.Email},
		{registration.FieldPassword, opts.Password},
		{registration.FieldPasswordConfirm, opts.Confirm},
		{registration.FieldPlan, opts.Plan},
		{registration.FieldAgeCheck, fmt.Sprint(opts.Age)},
		{registration.FieldTermsCheck, fmt.Sprint(opts.Terms)},
	}
	for _, f := range fields {
		if err := form.Set(f.name, f.value); err != nil {
			return err
		}
	}

	sub, err := registration.NewSubmitter(registration.Config{
		Creator: registration.NewAPIClient(opts.API),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	acc, err := sub.Submit(ctx, form)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s as %s (referral code %s)\n", acc.Email, acc.Role, acc.ReferralCode)
	return nil
}
