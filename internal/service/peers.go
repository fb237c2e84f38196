package service

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"review-metrics-service/internal/model"
)

// PeersExchangeStrength weighs the review and comment exchanges between the
// most active authors. Each of the top authors costs one extra ranking query.
func (s *metricsService) PeersExchangeStrength(ctx context.Context, index, repositoryFullname string, params model.Params) model.Result[[]model.PeerStrength] {
	c := call{MetricPeersExchangeStrength, index, repositoryFullname}
	params = model.Normalize(params).WithEtype(model.ChangeReviewedEvent, model.ChangeCommentedEvent)

	authors, err := s.terms(ctx, index, repositoryFullname, model.FieldAuthor, params)
	if err != nil {
		return failure[[]model.PeerStrength](s, c, err)
	}

	var mu sync.Mutex
	strength := make(map[[2]string]int64)
	requests := make([]Request, 0, len(authors))
	for _, author := range authors {
		p := params
		p.Author = author.Key
		requests = append(requests, Request{
			Key: author.Key,
			Run: func(ctx context.Context) error {
				partners, err := s.terms(ctx, index, repositoryFullname, model.FieldOnAuthor, p)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				accumulatePeers(strength, author.Key, partners)
				return nil
			},
		})
	}
	if err := s.batch.Run(ctx, requests); err != nil {
		return failure[[]model.PeerStrength](s, c, err)
	}

	return model.OK(sortedPeers(strength))
}

// accumulatePeers adds the exchanges of author with each partner to the
// undirected edge keyed by the sorted pair. Self exchanges are dropped.
func accumulatePeers(strength map[[2]string]int64, author string, partners []model.TermBucket) {
	for _, partner := range partners {
		if partner.Key == author {
			continue
		}
		strength[peerKey(author, partner.Key)] += partner.DocCount
	}
}

func peerKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

func sortedPeers(strength map[[2]string]int64) []model.PeerStrength {
	peers := make([]model.PeerStrength, 0, len(strength))
	for pair, weight := range strength {
		peers = append(peers, model.PeerStrength{Peers: pair, Strength: weight})
	}
	slices.SortFunc(peers, func(a, b model.PeerStrength) int {
		if c := cmp.Compare(b.Strength, a.Strength); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Peers[0], b.Peers[0]); c != 0 {
			return c
		}
		return cmp.Compare(a.Peers[1], b.Peers[1])
	})
	return peers
}
