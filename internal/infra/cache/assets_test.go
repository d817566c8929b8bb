package cache

import "testing"

func TestAssetCacheEvictsBothIndexes(t *testing.T) {
	c, err := NewAssetCache(2)
	if err != nil {
		t.Fatal(err)
	}
	c.Put(Asset{Key: "sprite:Tony", Handle: "gen:1"})
	c.Put(Asset{Key: "sprite:Cindy", Handle: "gen:2"})

	if a, ok := c.ByHandle("gen:1"); !ok || a.Key != "sprite:Tony" || a.CreatedAt.IsZero() {
		t.Fatalf("ByHandle(gen:1) = %+v, %v", a, ok)
	}

	// Tony was touched last through Get; Cindy goes first
	c.Get("sprite:Tony")
	c.Put(Asset{Key: "disaster:FLOOD", Handle: "gen:3"})

	if _, ok := c.Get("sprite:Cindy"); ok {
		t.Errorf("least recently used asset survived")
	}
	if _, ok := c.ByHandle("gen:2"); ok {
		t.Errorf("evicted handle still resolves")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d", c.Len())
	}
}

func TestAssetCacheReplaceDropsOldHandle(t *testing.T) {
	c, _ := NewAssetCache(4)
	c.Put(Asset{Key: "sprite:Xeno", Handle: "gen:old"})
	c.Put(Asset{Key: "sprite:Xeno", Handle: "gen:new"})

	if _, ok := c.ByHandle("gen:old"); ok {
		t.Errorf("replaced handle still resolves")
	}
	if a, ok := c.Get("sprite:Xeno"); !ok || a.Handle != "gen:new" {
		t.Errorf("Get = %+v", a)
	}
}
