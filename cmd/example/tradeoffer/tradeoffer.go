package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/arkmire/steamtrade/community"
	"github.com/arkmire/steamtrade/manager"
	"github.com/arkmire/steamtrade/offer"
	"github.com/arkmire/steamtrade/steamid"
	"github.com/arkmire/steamtrade/totp"
	"github.com/arkmire/steamtrade/tradeoffer"
)

var (
	apiKey         string
	accountName    string
	password       string
	sharedSecret   string
	identitySecret string
)

func init() {
	apiKey = os.Getenv("API_KEY")
	accountName = os.Getenv("ACCOUNT_NAME")
	password = os.Getenv("PASSWORD")
	sharedSecret = os.Getenv("SHARED_SECRET")
	identitySecret = os.Getenv("IDENTITY_SECRET")
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

	mgr, err := manager.New(manager.Config{
		APIKey:              tradeoffer.APIKey(apiKey),
		IntervalMs:          30000,
		CancelTimeMs:        int64(30 * time.Minute / time.Millisecond),
		GetDescriptions:     true,
		Language:             "english",
		EnableQuotaTrim:      true,
		ItemCacheCapacity:    1024,
		ItemCacheTTLSeconds:  int64((24 * time.Hour).Seconds()),
		IdentitySecret:       identitySecret,
	}, manager.Session{
		Username:  accountName,
		SteamID:   sid,
		SessionID: communityClient.GetSessionID(),
		HTTP:      communityClient.HTTPClient(),
	}, nil, nil)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		for ev := range mgr.Events() {
			fmt.Printf("event: %s offer=%v\n", ev.Kind, ev.Offer)
		}
	}()

	mgr.Start()
	defer mgr.Stop()

	partner, err := steamid.Parse(os.Getenv("PARTNER_STEAM_ID"))
	if err != nil {
		log.Fatal(err)
	}

	o, err := offer.New(partner, os.Getenv("PARTNER_TRADE_TOKEN"))
	if err != nil {
		log.Fatal(err)
	}
	_ = o.AddItem(true, offer.Item{GameID: 730, ContextID: 2, AssetID: 1234567890, Amount: 1})

	if _, err := mgr.Send(o); err != nil {
		log.Fatal(err)
	}

	b, _ := json.Marshal(o)
	fmt.Println(string(b))

	time.Sleep(time.Minute)
}
