// Package orderbook implements the in-memory matching engine for one
// binary-outcome market. Prices live in (0,1) at two-decimal precision; an
// incoming order matches the exact complementary price level of the
// opposite side (a BUY at p against a SELL at 1-p) under price-time
// priority. Each side keeps its price levels in a red-black tree with a
// FIFO queue per level.
//
// The engine is single-writer. Every candidate fill is first confirmed by
// an external verification authority, which may shrink or evict the resting
// order before the fill is applied.
package orderbook
