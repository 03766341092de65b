package service

import (
	"math"

	"predict_go/internal/domain"
	"predict_go/internal/infra/storage"

	"github.com/google/uuid"
)

// CreateBinaryContract seeds a two-sided pool with ante on both sides
// and curve weight p = initialProb, which prices the market at
// initialProb exactly.
func (s *MarketService) CreateBinaryContract(question string, initialProb, ante float64) (*domain.Contract, error) {
	if initialProb <= domain.MinProb || initialProb >= domain.MaxProb {
		return nil, &domain.PreconditionError{Field: "initialProb", Err: domain.ErrInvalidLimitProb}
	}
	if ante <= 0 {
		return nil, &domain.PreconditionError{Field: "ante", Err: domain.ErrNegativeAmount}
	}

	c := &domain.Contract{
		ID:        uuid.NewString(),
		Question:  question,
		Mechanism: domain.MechanismBinary,
		Pool:      domain.Pool{Yes: ante, No: ante},
		P:         initialProb,
		Version:   1,
	}
	if err := s.store.CreateContract(c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateMultiContract seeds one pool per answer at the given initial
// probabilities (which must sum to one), each holding ante units of
// liquidity at p = 1/2.
func (s *MarketService) CreateMultiContract(question string, answerTexts []string, initialProbs []float64, ante float64, now int64) (*domain.Contract, error) {
	if len(answerTexts) < 2 || len(answerTexts) != len(initialProbs) {
		return nil, &domain.PreconditionError{Field: "answers", Err: domain.ErrUnknownAnswer}
	}
	if ante <= 0 {
		return nil, &domain.PreconditionError{Field: "ante", Err: domain.ErrNegativeAmount}
	}
	sum := 0.0
	for _, p := range initialProbs {
		if p <= domain.MinProb || p >= domain.MaxProb {
			return nil, &domain.PreconditionError{Field: "initialProbs", Err: domain.ErrInvalidLimitProb}
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-6 {
		return nil, &domain.PreconditionError{Field: "initialProbs", Err: domain.ErrInvalidLimitProb}
	}

	contractID := uuid.NewString()
	answers := make([]*domain.Answer, len(answerTexts))
	for i, text := range answerTexts {
		answers[i] = seedAnswer(contractID, text, i, initialProbs[i], ante, now)
	}

	c := &domain.Contract{
		ID:        contractID,
		Question:  question,
		Mechanism: domain.MechanismMultiSumToOne,
		Answers:   answers,
		Version:   1,
	}
	if err := s.store.CreateContract(c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateNumericContract divides [min, max] into one bucket per answer
// text and seeds every bucket at equal probability.
func (s *MarketService) CreateNumericContract(question string, bucketTexts []string, min, max float64, isLogScale bool, ante float64, now int64) (*domain.Contract, error) {
	n := len(bucketTexts)
	if n < 2 {
		return nil, &domain.PreconditionError{Field: "buckets", Err: domain.ErrUnknownAnswer}
	}
	if max <= min {
		return nil, &domain.PreconditionError{Field: "range", Err: domain.ErrNegativeAmount}
	}
	if ante <= 0 {
		return nil, &domain.PreconditionError{Field: "ante", Err: domain.ErrNegativeAmount}
	}

	contractID := uuid.NewString()
	answers := make([]*domain.Answer, n)
	for i, text := range bucketTexts {
		answers[i] = seedAnswer(contractID, text, i, 1/float64(n), ante, now)
	}

	c := &domain.Contract{
		ID:         contractID,
		Question:   question,
		Mechanism:  domain.MechanismMultiSumToOne,
		Answers:    answers,
		Min:        min,
		Max:        max,
		IsLogScale: isLogScale,
		Version:    1,
	}
	if err := s.store.CreateContract(c); err != nil {
		return nil, err
	}
	return c, nil
}

// seedAnswer builds a pool holding ante liquidity priced at prob: with
// p = 1/2 the reserves y = ante*sqrt((1-prob)/prob) and
// n = ante*sqrt(prob/(1-prob)) give n/(y+n) = prob and y*n = ante^2.
func seedAnswer(contractID, text string, index int, prob, ante float64, now int64) *domain.Answer {
	return &domain.Answer{
		ID:          uuid.NewString(),
		ContractID:  contractID,
		Text:        text,
		Index:       index,
		PoolYes:     ante * math.Sqrt((1-prob)/prob),
		PoolNo:      ante * math.Sqrt(prob/(1-prob)),
		Prob:        prob,
		CreatedTime: now,
	}
}

// CreateUser registers a user with a starting balance.
func (s *MarketService) CreateUser(name string, balance float64) (string, error) {
	id := uuid.NewString()
	err := s.store.UpsertUser(&storage.UserRow{ID: id, Name: name, Balance: balance})
	if err != nil {
		return "", err
	}
	return id, nil
}
