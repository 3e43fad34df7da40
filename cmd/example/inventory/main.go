package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/arkmire/steamtrade/community"
	"github.com/arkmire/steamtrade/economy/inventory"
	"github.com/arkmire/steamtrade/totp"
)

var (
	accountName  string
	password     string
	sharedSecret string
)

func init() {
	accountName = os.Getenv("ACCOUNT_NAME")
	password = os.Getenv("PASSWORD")
	sharedSecret = os.Getenv("SHARED_SECRET")
}

func main() {
	communityClient, err := community.NewClient()
	if err != nil {
		log.Fatal(err)
	}

	code, err := totp.LoginCode(sharedSecret, func() uint64 { return uint64(time.Now().Unix()) })
	if err != nil {
		log.Fatal(err)
	}

	err = communityClient.Login(community.LoginDetails{
		AccountName:   accountName,
		Password:      password,
		TwoFactorCode: code,
	})
	if err != nil {
		log.Fatal(err)
	}

	data, err := inventory.GetOwnInventory(communityClient.HTTPClient(), 2, 730, true)
	if err != nil {
		log.Fatal(err)
	}

	m, err := json.Marshal(data)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(string(m))
}
