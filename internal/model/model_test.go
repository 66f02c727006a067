package model_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/auctionhub/auction-engine/internal/model"
)

func TestConditionFromScale(t *testing.T) {
	cases := []struct {
		scale int
		want  string
	}{
		{1, "New."},
		{2, "Barely used."},
		{3, "Used."},
		{4, "Moderately used."},
		{5, "Heavily used."},
		{7, "Used."},  // out of range maps to "Used."
		{0, "Used."},
		{-1, "Used."},
	}
	for _, tc := range cases {
		if got := model.ConditionFromScale(tc.scale); got != tc.want {
			t.Errorf("ConditionFromScale(%d) = %q, want %q", tc.scale, got, tc.want)
		}
	}
}

func TestItemTypeExists(t *testing.T) {
	assert.True(t, model.ItemTypeExists("Computer"))
	assert.True(t, model.ItemTypeExists("computer"))
	assert.True(t, model.ItemTypeExists("SPORTS JERSEY"))
	assert.False(t, model.ItemTypeExists("Spaceship"))
	assert.False(t, model.ItemTypeExists(""))
}

func TestListingSold(t *testing.T) {
	item := model.NewAuctionItem(1, "Paperback", "Book", "dog-eared", 3)
	l := model.NewListing(item, decimal.NewFromInt(10), decimal.NewFromInt(50))

	assert.False(t, l.HasBids(), "fresh listing has no bids")
	assert.False(t, l.Sold(), "no bids means not sold")

	l.CurrentPrice = decimal.NewFromInt(40)
	assert.False(t, l.Sold(), "best bid below reserve is not a sale")

	l.CurrentPrice = decimal.NewFromInt(50)
	assert.True(t, l.Sold(), "best bid at reserve is a sale")
}

func TestUserEqualityByID(t *testing.T) {
	a := model.AuctionUser{ID: 7, Name: "alice"}
	b := model.AuctionUser{ID: 7, Name: "renamed"}
	c := model.AuctionUser{ID: 8, Name: "alice"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
