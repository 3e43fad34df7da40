package inventory

import (
	"fmt"
	"net/http"
	"strconv"
)

func GetPartialOwnInventory(client *http.Client, contextId uint64, appId uint32, start *uint, tradableOnly bool) (*PartialInventory, error) {
	url := fmt.Sprintf("https://steamcommunity.com/my/inventory/json/%d/%d", appId, contextId)
	query := make([]string, 0, 2)
	if tradableOnly {
		query = append(query, "trading=1")
	}
	if start != nil {
		query = append(query, "start="+strconv.FormatUint(uint64(*start), 10))
	}
	for i, q := range query {
		if i == 0 {
			url += "?" + q
		} else {
			url += "&" + q
		}
	}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return DoInventoryRequest(client, req)
}

func GetOwnInventory(client *http.Client, contextId uint64, appId uint32, tradableOnly bool) (*Inventory, error) {
	return GetFullInventory(func() (*PartialInventory, error) {
		return GetPartialOwnInventory(client, contextId, appId, nil, tradableOnly)
	}, func(start uint) (*PartialInventory, error) {
		return GetPartialOwnInventory(client, contextId, appId, &start, tradableOnly)
	})
}
