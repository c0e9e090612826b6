// webhooksign подписывает тело уведомления секретом провайдера и,
// если задан -url, отправляет его как провайдер.
//
//	webhooksign -provider wolvpay -body '{"payment_id":"inv-1","status":"completed"}'
//	webhooksign -provider oxapay -file notify.json -url http://localhost:8080/webhook/oxapay
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/linemk/crypto-shop/internal/payment"
	"github.com/pkg/errors"
)

type options struct {
	provider string
	secret   string
	body     string
	file     string
	url      string
	timeout  time.Duration
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.provider, "provider", "wolvpay", "payment provider: wolvpay or oxapay")
	flag.StringVar(&opts.secret, "secret", "", "webhook secret, defaults to <PROVIDER>_WEBHOOK_SECRET")
	flag.StringVar(&opts.body, "body", "", "raw webhook body")
	flag.StringVar(&opts.file, "file", "", "file with raw webhook body")
	flag.StringVar(&opts.url, "url", "", "if set, POST the signed body to this url")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func run(opts options) error {
	id, err := payment.ParseProviderID(opts.provider)
	if err != nil {
		return err
	}
	header, err := payment.SignatureHeader(id)
	if err != nil {
		return err
	}

	secret := opts.secret
	if secret == "" {
		secret = os.Getenv(strings.ToUpper(string(id)) + "_WEBHOOK_SECRET")
	}
	if secret == "" {
		return errors.New("webhook secret is not set")
	}

	body, err := readBody(opts)
	if err != nil {
		return err
	}
	sig := payment.Sign(secret, body)

	if opts.url == "" {
		fmt.Printf("%s: %s\n", header, sig)
		return nil
	}

	resp, err := resty.New().
		SetTimeout(opts.timeout).
		R().
		SetHeader("Content-Type", "application/json").
		SetHeader(header, sig).
		SetBody(body).
		Post(opts.url)
	if err != nil {
		return errors.Wrap(err, "failed to send webhook")
	}
	fmt.Printf("%s %s\n", resp.Status(), strings.TrimSpace(resp.String()))
	if resp.IsError() {
		return errors.Errorf("webhook rejected with status %d", resp.StatusCode())
	}
	return nil
}

// readBody тело берётся байт в байт: подпись считается по сырым байтам
func readBody(opts options) ([]byte, error) {
	switch {
	case opts.body != "" && opts.file != "":
		return nil, errors.New("use either -body or -file")
	case opts.file != "":
		b, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read body file")
		}
		return b, nil
	case opts.body != "":
		return []byte(opts.body), nil
	}
	return nil, errors.New("empty body: set -body or -file")
}
