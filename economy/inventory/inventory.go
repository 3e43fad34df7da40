// Package inventory fetches and paginates a user's community
// inventory — one of the "remote API request/response DTOs, inventory
// enumeration, and item-description caching" collaborators spec.md §1
// lists as explicitly out of the core's scope. It exists so
// own.go's GetOwnInventory has somewhere real to call.
package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Asset is one inventory slot: an asset id plus the classid/instanceid
// pair used to look up its Description.
type Asset struct {
	ID         string `json:"id"`
	ClassID    string `json:"classid"`
	InstanceID string `json:"instanceid"`
	Amount     string `json:"amount"`
	Pos        int    `json:"pos"`
}

// Description is the shared display metadata for every asset sharing
// a (classid, instanceid) pair.
type Description struct {
	AppID          uint32 `json:"appid"`
	ClassID        string `json:"classid"`
	InstanceID     string `json:"instanceid"`
	IconURL        string `json:"icon_url"`
	Name           string `json:"name"`
	MarketHashName string `json:"market_hash_name"`
	Type           string `json:"type"`
	Tradable       bool   `json:"tradable"`
	Marketable     bool   `json:"marketable"`
}

func descKey(classID, instanceID string) string {
	return classID + "_" + instanceID
}

// PartialInventory is one page of the paginated inventory/json
// endpoint.
type PartialInventory struct {
	Assets       []Asset
	Descriptions map[string]Description
	More         bool
	MoreStart    uint
}

type inventoryPage struct {
	Success        bool                   `json:"success"`
	Error          string                 `json:"error"`
	RgInventory    map[string]rawAsset    `json:"rgInventory"`
	RgDescriptions map[string]Description `json:"rgDescriptions"`
	More           bool                   `json:"more"`
	MoreStart      json.RawMessage        `json:"more_start"`
}

type rawAsset struct {
	ID         string `json:"id"`
	ClassID    string `json:"classid"`
	InstanceID string `json:"instanceid"`
	Amount     string `json:"amount"`
	Pos        int    `json:"pos"`
}

// DoInventoryRequest executes req against client and parses the
// inventory/json page shape, failing on a structurally present but
// unsuccessful response.
func DoInventoryRequest(client *http.Client, req *http.Request) (*PartialInventory, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inventory: http error %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var page inventoryPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("inventory: malformed response: %w", err)
	}
	if !page.Success {
		if page.Error != "" {
			return nil, errors.New("inventory: " + page.Error)
		}
		return nil, errors.New("inventory: request unsuccessful")
	}

	assets := make([]Asset, 0, len(page.RgInventory))
	for _, a := range page.RgInventory {
		assets = append(assets, Asset{ID: a.ID, ClassID: a.ClassID, InstanceID: a.InstanceID, Amount: a.Amount, Pos: a.Pos})
	}

	var moreStart uint
	if len(page.MoreStart) > 0 {
		_ = json.Unmarshal(page.MoreStart, &moreStart)
	}

	return &PartialInventory{
		Assets:       assets,
		Descriptions: page.RgDescriptions,
		More:         page.More,
		MoreStart:    moreStart,
	}, nil
}

// Inventory is a fully paginated, merged inventory.
type Inventory struct {
	Assets       []Asset
	Descriptions map[string]Description
}

// Description resolves the shared metadata for one asset.
func (inv *Inventory) Description(a Asset) (Description, bool) {
	d, ok := inv.Descriptions[descKey(a.ClassID, a.InstanceID)]
	return d, ok
}

// GetFullInventory drives pagination: first fetches page 1 via fetchFirst,
// then repeatedly calls fetchMore(start) while the server reports more
// pages, merging every page's assets and descriptions.
func GetFullInventory(fetchFirst func() (*PartialInventory, error), fetchMore func(start uint) (*PartialInventory, error)) (*Inventory, error) {
	page, err := fetchFirst()
	if err != nil {
		return nil, err
	}
	inv := &Inventory{Descriptions: map[string]Description{}}
	mergePage(inv, page)

	for page.More {
		page, err = fetchMore(page.MoreStart)
		if err != nil {
			return nil, err
		}
		mergePage(inv, page)
	}

	return inv, nil
}

func mergePage(inv *Inventory, page *PartialInventory) {
	inv.Assets = append(inv.Assets, page.Assets...)
	for k, v := range page.Descriptions {
		inv.Descriptions[k] = v
	}
}
