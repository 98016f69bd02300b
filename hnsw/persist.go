package hnsw

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	magicGraph   = 0x4B474248 // "KGBH"
	versionGraph = 1

	flagHasEntry  = 1 << 0
	flagHeuristic = 1 << 1

	// Bounds on stream-supplied values. Legitimate graphs stay far below
	// both; anything above marks a corrupt or hostile stream, and rejecting
	// it keeps Load from allocating on attacker-chosen sizes.
	maxPersistedLevel     = 64
	maxPersistedDimension = 1 << 16
	maxPersistedNodes     = 1 << 27
)

// Save writes the graph to w in a binary format that Load restores exactly:
// levels, adjacency lists and tombstones survive the round trip, so a loaded
// graph answers every query the way the saved one did. The distance function
// is not part of the format; Load takes it again from its options.
func (g *Graph) Save(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	bw := bufio.NewWriter(w)

	var flags uint32
	if g.hasEntry {
		flags |= flagHasEntry
	}
	if g.opts.Heuristic {
		flags |= flagHeuristic
	}

	var hdr [40]byte
	binary.LittleEndian.PutUint32(hdr[0:4], magicGraph)
	binary.LittleEndian.PutUint32(hdr[4:8], versionGraph)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(g.dimension))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(g.opts.M))
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(g.opts.EFConstruction))
	binary.LittleEndian.PutUint32(hdr[20:24], uint32(g.opts.EFSearch))
	binary.LittleEndian.PutUint32(hdr[24:28], g.entry)
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(g.maxLevel))
	binary.LittleEndian.PutUint32(hdr[32:36], uint32(len(g.nodes)))
	binary.LittleEndian.PutUint32(hdr[36:40], flags)

	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}

	for _, n := range g.nodes {
		if err := binary.Write(bw, binary.LittleEndian, n != nil); err != nil {
			return err
		}

		if n == nil {
			continue
		}

		if err := binary.Write(bw, binary.LittleEndian, uint32(n.level)); err != nil {
			return err
		}

		if err := binary.Write(bw, binary.LittleEndian, n.vector); err != nil {
			return err
		}

		for l := 0; l <= n.level; l++ {
			if err := binary.Write(bw, binary.LittleEndian, uint32(len(n.conns[l]))); err != nil {
				return err
			}

			if err := binary.Write(bw, binary.LittleEndian, n.conns[l]); err != nil {
				return err
			}
		}
	}

	tombs, err := g.tombstones.ToBytes()
	if err != nil {
		return err
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(tombs))); err != nil {
		return err
	}

	if _, err := bw.Write(tombs); err != nil {
		return err
	}

	return bw.Flush()
}

// Load restores a graph written by Save. Options that shape the persisted
// structure (dimension, M, EFConstruction, EFSearch, heuristic selection)
// come from the stream and override the given options; the distance function
// and seed are taken from the options as usual.
func Load(r io.Reader, optFns ...func(o *Options)) (*Graph, error) {
	br := bufio.NewReader(r)

	var hdr [40]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("hnsw: read header: %w", err)
	}

	if magic := binary.LittleEndian.Uint32(hdr[0:4]); magic != magicGraph {
		return nil, fmt.Errorf("hnsw: bad magic %#x", magic)
	}

	if version := binary.LittleEndian.Uint32(hdr[4:8]); version != versionGraph {
		return nil, fmt.Errorf("hnsw: unsupported version %d", version)
	}

	dimension := int(binary.LittleEndian.Uint32(hdr[8:12]))
	if dimension > maxPersistedDimension {
		return nil, fmt.Errorf("hnsw: dimension %d exceeds limit %d", dimension, maxPersistedDimension)
	}

	flags := binary.LittleEndian.Uint32(hdr[36:40])

	g, err := New(dimension, append(optFns, func(o *Options) {
		o.M = int(binary.LittleEndian.Uint32(hdr[12:16]))
		o.EFConstruction = int(binary.LittleEndian.Uint32(hdr[16:20]))
		o.EFSearch = int(binary.LittleEndian.Uint32(hdr[20:24]))
		o.Heuristic = flags&flagHeuristic != 0
	})...)
	if err != nil {
		return nil, err
	}

	g.entry = binary.LittleEndian.Uint32(hdr[24:28])
	g.maxLevel = int(binary.LittleEndian.Uint32(hdr[28:32]))
	g.hasEntry = flags&flagHasEntry != 0

	if g.maxLevel > maxPersistedLevel {
		return nil, fmt.Errorf("hnsw: max level %d exceeds limit %d", g.maxLevel, maxPersistedLevel)
	}

	nodeCount := int(binary.LittleEndian.Uint32(hdr[32:36]))
	if nodeCount > maxPersistedNodes {
		return nil, fmt.Errorf("hnsw: node count %d exceeds limit %d", nodeCount, maxPersistedNodes)
	}

	g.nodes = make([]*node, nodeCount)

	for slot := 0; slot < nodeCount; slot++ {
		var present bool
		if err := binary.Read(br, binary.LittleEndian, &present); err != nil {
			return nil, fmt.Errorf("hnsw: read node %d: %w", slot, err)
		}

		if !present {
			continue
		}

		var level uint32
		if err := binary.Read(br, binary.LittleEndian, &level); err != nil {
			return nil, fmt.Errorf("hnsw: read node %d: %w", slot, err)
		}

		if level > maxPersistedLevel {
			return nil, fmt.Errorf("hnsw: node %d level %d exceeds limit %d", slot, level, maxPersistedLevel)
		}

		n := &node{
			vector: make([]float32, dimension),
			level:  int(level),
			conns:  make([][]uint32, level+1),
		}

		if err := binary.Read(br, binary.LittleEndian, n.vector); err != nil {
			return nil, fmt.Errorf("hnsw: read node %d: %w", slot, err)
		}

		for l := 0; l <= n.level; l++ {
			var cnt uint32
			if err := binary.Read(br, binary.LittleEndian, &cnt); err != nil {
				return nil, fmt.Errorf("hnsw: read node %d: %w", slot, err)
			}

			// A node cannot link to more slots than the graph holds.
			if int(cnt) > nodeCount {
				return nil, fmt.Errorf("hnsw: node %d has %d connections at level %d, graph has %d slots", slot, cnt, l, nodeCount)
			}

			n.conns[l] = make([]uint32, cnt)
			if err := binary.Read(br, binary.LittleEndian, n.conns[l]); err != nil {
				return nil, fmt.Errorf("hnsw: read node %d: %w", slot, err)
			}
		}

		g.nodes[slot] = n
		g.allocated++
	}

	var tombLen uint32
	if err := binary.Read(br, binary.LittleEndian, &tombLen); err != nil {
		return nil, fmt.Errorf("hnsw: read tombstones: %w", err)
	}

	// The tombstone bitmap holds slot ids below nodeCount, so its serialized
	// form cannot legitimately take more than a few bytes per slot.
	if int64(tombLen) > int64(16*nodeCount)+4096 {
		return nil, fmt.Errorf("hnsw: tombstone block of %d bytes too large for %d slots", tombLen, nodeCount)
	}

	if tombLen > 0 {
		buf := make([]byte, tombLen)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("hnsw: read tombstones: %w", err)
		}

		if _, err := g.tombstones.ReadFrom(bytes.NewReader(buf)); err != nil {
			return nil, fmt.Errorf("hnsw: decode tombstones: %w", err)
		}
	}

	if g.hasEntry && int(g.entry) >= nodeCount {
		return nil, fmt.Errorf("hnsw: entry slot %d out of range", g.entry)
	}

	return g, nil
}
