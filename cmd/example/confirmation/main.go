package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/arkmire/steamtrade/community"
	"github.com/arkmire/steamtrade/confirmation"
	"github.com/arkmire/steamtrade/steamid"
	"github.com/arkmire/steamtrade/totp"
)

var (
	accountName    string
	password       string
	identitySecret string
	sharedSecret   string
)

func init() {
	accountName = os.Getenv("ACCOUNT_NAME")
	password = os.Getenv("PASSWORD")
	identitySecret = os.Getenv("IDENTITY_SECRET")
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

	sid, err := steamid.Parse(communityClient.GetSteamID())
	if err != nil {
		log.Fatal(err)
	}

	c := confirmation.New(
		communityClient,
		totp.DeviceID(sid.AccountID()),
		sid,
		totp.DefaultDeriver{IdentitySecret: identitySecret},
		nil,
	)

	entries, err := c.FetchList()
	if err != nil {
		log.Fatal(err)
	}
	if len(entries) == 0 {
		return
	}

	m, _ := json.Marshal(entries)
	fmt.Println(string(m))
	fmt.Println(entries[0].Creator)

	if err := c.RespondToOffer(entries[0].Creator, confirmation.OpCancel); err != nil {
		log.Fatal(err)
	}
}
