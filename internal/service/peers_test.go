package service

import (
	"review-metrics-service/internal/model"
	"review-metrics-service/internal/query"

	"github.com/stretchr/testify/mock"
)

func (s *MetricsServiceTestSuite) TestPeersExchangeStrength() {
	s.add(
		interaction(model.ChangeReviewedEvent, "bob", "alice"),
		interaction(model.ChangeReviewedEvent, "bob", "alice"),
		interaction(model.ChangeCommentedEvent, "alice", "bob"),
		interaction(model.ChangeReviewedEvent, "carol", "alice"),
		interaction(model.ChangeCommentedEvent, "alice", "alice"),
		// Created events are not exchanges.
		interaction(model.ChangeCreatedEvent, "carol", "bob"),
	)

	res := s.service.PeersExchangeStrength(s.ctx, index, "org/a", model.Params{})
	s.Require().True(res.IsOK())
	s.Equal([]model.PeerStrength{
		{Peers: [2]string{"alice", "bob"}, Strength: 3},
		{Peers: [2]string{"alice", "carol"}, Strength: 1},
	}, res.Value)

	for _, edge := range res.Value {
		s.NotEqual(edge.Peers[0], edge.Peers[1], "self pairs are dropped")
	}
}

func (s *MetricsServiceTestSuite) TestPeersExchangeStrength_NoActivity() {
	res := s.service.PeersExchangeStrength(s.ctx, index, "org/a", model.Params{})
	s.Require().True(res.IsOK())
	s.Empty(res.Value)
}

func (s *MetricsServiceTestSuite) TestAccumulatePeers_Symmetry() {
	forward := make(map[[2]string]int64)
	accumulatePeers(forward, "alice", []model.TermBucket{{Key: "bob", DocCount: 4}})
	accumulatePeers(forward, "bob", []model.TermBucket{{Key: "alice", DocCount: 2}})

	backward := make(map[[2]string]int64)
	accumulatePeers(backward, "bob", []model.TermBucket{{Key: "alice", DocCount: 2}})
	accumulatePeers(backward, "alice", []model.TermBucket{{Key: "bob", DocCount: 4}})

	s.Equal(forward, backward)
	s.Equal(int64(6), forward[peerKey("bob", "alice")])
	s.Equal(peerKey("alice", "bob"), peerKey("bob", "alice"))
}

func (s *MetricsServiceTestSuite) TestSortedPeers_TiesByPair() {
	peers := sortedPeers(map[[2]string]int64{
		{"carol", "dave"}:  2,
		{"alice", "bob"}:   2,
		{"alice", "carol"}: 5,
	})
	s.Equal([][2]string{{"alice", "carol"}, {"alice", "bob"}, {"carol", "dave"}},
		[][2]string{peers[0].Peers, peers[1].Peers, peers[2].Peers})
}

func (s *MetricsServiceFailureTestSuite) TestPeersExchangeStrength_PartnerQueryFailure() {
	params := model.Normalize(model.Params{}).WithEtype(model.ChangeReviewedEvent, model.ChangeCommentedEvent)
	authorsAgg := query.TermsAgg{Field: model.FieldAuthor, Size: model.DefaultSize}
	partnersAgg := query.TermsAgg{Field: model.FieldOnAuthor, Size: model.DefaultSize}

	s.repo.On("Terms", mock.Anything, index, query.New("org/a", params, true), authorsAgg).
		Return([]model.TermBucket{{Key: "alice", DocCount: 3}, {Key: "bob", DocCount: 1}}, nil).Once()

	aliceParams := params
	aliceParams.Author = "alice"
	s.repo.On("Terms", mock.Anything, index, query.New("org/a", aliceParams, true), partnersAgg).
		Return([]model.TermBucket{{Key: "bob", DocCount: 3}}, nil).Once()

	bobParams := params
	bobParams.Author = "bob"
	s.repo.On("Terms", mock.Anything, index, query.New("org/a", bobParams, true), partnersAgg).
		Return(nil, s.errDown).Once()

	res := s.service.PeersExchangeStrength(s.ctx, index, "org/a", model.Params{})
	s.True(res.IsFailure())
	s.ErrorIs(res.Err, s.errDown)
	s.ErrorContains(res.Err, "bob")
}
