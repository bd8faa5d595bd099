package features

import "strings"

// productKeywords marks reviews that talk about the product itself:
// fabric, fit, size, build quality. Substring match against the raw text.
var productKeywords = []string{
	"두께", "두껍", "얇", "시보리", "지퍼", "마감", "박음질", "실밥", "손상",
	"보들", "부드럽", "거칠", "까끌", "탄탄", "짱짱", "퀄리", "재질",
	"소재", "원단", "털", "보풀", "비침", "안감", "주머니", "단추", "버튼",
	"신축성", "스판", "구김", "물빠짐", "세탁", "건조", "냄새", "향", "오염",
	"핏", "기장", "소매", "허리", "어깨", "가슴", "품", "통",
	"오버", "루즈", "슬림", "타이트", "넉넉", "작아", "커요", "길어", "짧아",
	"넓어", "좁아", "딱 맞", "헐렁", "쪼이", "작네", "크네", "길네", "짧네", "맞네",
	"사이즈", "크기", "cm", "kg", "키", "몸무게", "평소", "크네요", "커서", "작네요",
	"불편", "편안", "아프", "따뜻", "시원", "여름", "겨울", "가을", "봄", "계절",
	"입어보", "신어보", "써보", "사용해", "착용",
	"발볼", "발등", "굽", "무게", "가볍", "무겁", "소음", "소리", "조립", "설치", "신발끈",
	"색감", "색상", "실물", "퀄리티", "실제",
}

// deliveryKeywords marks reviews that only talk about shipping.
var deliveryKeywords = []string{
	"배송", "택배", "기사", "박스", "포장", "주문", "도착", "배송비", "칼배송",
}

// HasProductKeyword reports whether the text mentions any product attribute.
func HasProductKeyword(text string) bool {
	return containsAny(text, productKeywords)
}

// HasDeliveryKeyword reports whether the text mentions shipping.
func HasDeliveryKeyword(text string) bool {
	return containsAny(text, deliveryKeywords)
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
