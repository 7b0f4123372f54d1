package election

import "testing"

func TestQualifierRoundTrip(t *testing.T) {
	topic := Topic("orders")

	vq := voteQualifier(topic)
	if !IsVote(topic, vq) {
		t.Errorf("expected %q to be recognized as a vote qualifier for %q", vq, topic)
	}
	if IsHeartbeat(topic, vq) {
		t.Errorf("vote qualifier %q misclassified as heartbeat", vq)
	}

	hq := heartbeatQualifier(topic)
	if !IsHeartbeat(topic, hq) {
		t.Errorf("expected %q to be recognized as a heartbeat qualifier for %q", hq, topic)
	}

	gotTopic, ok := TopicFromQualifier(vq)
	if !ok || gotTopic != topic {
		t.Errorf("TopicFromQualifier(%q) = %q, %v; want %q, true", vq, gotTopic, ok, topic)
	}

	gotTopic, ok = TopicFromQualifier(hq)
	if !ok || gotTopic != topic {
		t.Errorf("TopicFromQualifier(%q) = %q, %v; want %q, true", hq, gotTopic, ok, topic)
	}
}

func TestQualifiersAreTopicScoped(t *testing.T) {
	if IsVote(Topic("orders"), voteQualifier(Topic("shipments"))) {
		t.Error("a vote qualifier for a different topic should not match")
	}
}

func TestTopicFromQualifierRejectsUnknownSuffix(t *testing.T) {
	if _, ok := TopicFromQualifier("orders/unknown"); ok {
		t.Error("expected TopicFromQualifier to reject an unrecognized suffix")
	}
}

func TestMessageConstructorsSetQualifierAndPayload(t *testing.T) {
	topic := Topic("orders")

	vreq := NewVoteRequestMessage(topic, "addr1", VoteRequest{Term: 3})
	if vreq.Qualifier != voteQualifier(topic) {
		t.Errorf("unexpected qualifier %q", vreq.Qualifier)
	}
	if vreq.SenderAddress != "addr1" {
		t.Errorf("unexpected sender address %q", vreq.SenderAddress)
	}
	if vreq.CorrelationID == "" {
		t.Error("expected a non-empty correlation id")
	}
	payload, ok := vreq.Payload.(VoteRequest)
	if !ok || payload.Term != 3 {
		t.Errorf("unexpected payload %+v", vreq.Payload)
	}

	vresp := NewVoteResponseMessage(topic, "addr2", vreq.CorrelationID, VoteResponse{Granted: true, MemberID: "n2"})
	if vresp.CorrelationID != vreq.CorrelationID {
		t.Error("response should carry the request's correlation id")
	}

	hreq := NewHeartbeatRequestMessage(topic, "addr1", HeartbeatRequest{Term: 3, LeaderID: "n1"})
	if hreq.Qualifier != heartbeatQualifier(topic) {
		t.Errorf("unexpected qualifier %q", hreq.Qualifier)
	}

	hresp := NewHeartbeatResponseMessage(topic, "addr2", hreq.CorrelationID, HeartbeatResponse{MemberID: "n2", Term: 3})
	if hresp.CorrelationID != hreq.CorrelationID {
		t.Error("response should carry the request's correlation id")
	}
}
