package core

// phraseOwner ties a normalized phrase back to the rule trigger it came from
type phraseOwner struct {
	rule    int
	trigger int
}

type automatonNode struct {
	next map[byte]int32
	fail int32

	// phrases ending at this node, including those reached through fail links
	out []int32
}

// phraseAutomaton is an Aho-Corasick automaton over normalized trigger phrases. One is built
// per rule snapshot and shared read-only by every scan against that snapshot.
type phraseAutomaton struct {
	nodes   []automatonNode
	phrases []string
	owners  [][]phraseOwner
}

type phraseHit struct {
	phrase int32
	start  int
	end    int
}

func newPhraseAutomaton() *phraseAutomaton {
	return &phraseAutomaton{nodes: []automatonNode{{}}}
}

// add registers phrase for the given owner. Identical phrases share one entry.
func (a *phraseAutomaton) add(phrase string, owner phraseOwner, seen map[string]int32) {
	if phrase == "" {
		return
	}

	if id, ok := seen[phrase]; ok {
		a.owners[id] = append(a.owners[id], owner)
		return
	}

	node := int32(0)
	for i := 0; i < len(phrase); i++ {
		c := phrase[i]
		if a.nodes[node].next == nil {
			a.nodes[node].next = make(map[byte]int32)
		}
		child, ok := a.nodes[node].next[c]
		if !ok {
			a.nodes = append(a.nodes, automatonNode{})
			child = int32(len(a.nodes) - 1)
			a.nodes[node].next[c] = child
		}
		node = child
	}

	id := int32(len(a.phrases))
	a.phrases = append(a.phrases, phrase)
	a.owners = append(a.owners, []phraseOwner{owner})
	a.nodes[node].out = append(a.nodes[node].out, id)
	seen[phrase] = id
}

// build computes fail links breadth first
func (a *phraseAutomaton) build() {
	queue := make([]int32, 0, len(a.nodes))
	for _, child := range a.nodes[0].next {
		a.nodes[child].fail = 0
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for c, child := range a.nodes[node].next {
			queue = append(queue, child)

			f := a.nodes[node].fail
			for {
				if next, ok := a.nodes[f].next[c]; ok && next != child {
					a.nodes[child].fail = next
					break
				}
				if f == 0 {
					a.nodes[child].fail = 0
					break
				}
				f = a.nodes[f].fail
			}
			a.nodes[child].out = append(a.nodes[child].out, a.nodes[a.nodes[child].fail].out...)
		}
	}
}

// find returns every occurrence of every phrase in text, overlapping ones included
func (a *phraseAutomaton) find(text string) []phraseHit {
	var hits []phraseHit
	node := int32(0)
	for i := 0; i < len(text); i++ {
		c := text[i]
		for {
			if next, ok := a.nodes[node].next[c]; ok {
				node = next
				break
			}
			if node == 0 {
				break
			}
			node = a.nodes[node].fail
		}

		for _, id := range a.nodes[node].out {
			end := i + 1
			hits = append(hits, phraseHit{phrase: id, start: end - len(a.phrases[id]), end: end})
		}
	}
	return hits
}
